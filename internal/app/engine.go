// Package app wires the gate, store and index into the receipt service and
// fans its events out to subscribers.
package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"receiptd/internal/clock"
	mycrypto "receiptd/internal/crypto"
	"receiptd/internal/state"
	"receiptd/internal/types"
)

type Options struct {
	Backend state.Backend
	Clock   clock.Clock
	Logger  *zap.Logger

	// Sinks receive every event after the Hub and the log sink.
	Sinks []Sink

	// KeyPath is the node signing key file. Empty means a key that lives
	// only as long as the process.
	KeyPath string

	// DataDir holds the checkpoint journal and, for the memory backend,
	// the state snapshot. Empty disables persistence. The journal is local
	// to this process: with a shared redis backend each process seals only
	// the receipts it issued.
	DataDir string

	// HubBuffer is the per-subscriber channel size.
	HubBuffer int
}

type Engine struct {
	mu sync.Mutex

	backend state.Backend
	gate    *state.Gate
	store   *state.Store
	index   *state.Index

	clock  clock.Clock
	logger *zap.Logger
	hub    *Hub
	sinks  []Sink

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	snapshotPath string
	journalPath  string
	journal      journal

	issued  atomic.Uint64
	revoked atomic.Uint64
	purged  atomic.Uint64
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("app: backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	buffer := opts.HubBuffer
	if buffer <= 0 {
		buffer = 32
	}

	e := &Engine{
		backend: opts.Backend,
		gate:    state.NewGate(opts.Backend),
		store:   state.NewStore(opts.Backend),
		index:   state.NewIndex(opts.Backend),
		clock:   clk,
		logger:  logger,
		hub:     NewHub(buffer),
	}
	e.sinks = append([]Sink{e.hub, NewLogSink(logger)}, opts.Sinks...)

	if opts.KeyPath != "" {
		priv, pub, err := mycrypto.LoadOrCreate(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("app: node key: %w", err)
		}
		e.priv, e.pub = priv, pub
	} else {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("app: node key: %w", err)
		}
		e.priv, e.pub = priv, pub
	}

	if opts.DataDir != "" {
		e.journalPath = filepath.Join(opts.DataDir, "journal.cbor")
		if err := e.loadJournal(); err != nil {
			return nil, err
		}
		if _, ok := opts.Backend.(*state.MemoryBackend); ok {
			e.snapshotPath = filepath.Join(opts.DataDir, "snapshot.cbor")
			if err := e.loadSnapshot(); err != nil {
				_ = e.closeJournal()
				return nil, err
			}
		}
	}
	return e, nil
}

// ClaimOwnership makes caller the owner. Only the first claim succeeds.
func (e *Engine) ClaimOwnership(ctx context.Context, caller types.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.gate.Claim(ctx, caller); err != nil {
		return err
	}
	e.saveSnapshot()
	e.emit(ctx, types.Event{
		Kind:    types.EventOwnershipClaimed,
		Claimed: &types.OwnershipClaimed{NewOwner: caller},
	})
	return nil
}

// IssueReceipt records a receipt with caller as issuer and returns its id.
// Any identity may issue, naming any payer.
func (e *Engine) IssueReceipt(ctx context.Context, caller, payer, payee types.Identity, amount uint64, details string) (uint64, error) {
	if caller.IsNull() {
		return 0, state.ErrNotAuthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.Issue(ctx, caller, payer, payee, amount, details, e.clock.Now().Unix())
	if err != nil {
		return 0, err
	}
	e.appendLeaf(r)
	e.saveSnapshot()
	e.issued.Add(1)
	receiptsIssued.Add(1)

	e.emit(ctx, types.Event{
		Kind: types.EventReceiptIssued,
		Issued: &types.ReceiptIssued{
			ID: r.ID, Issuer: r.Issuer, Payer: r.Payer, Payee: r.Payee, Amount: r.Amount,
		},
	})
	return r.ID, nil
}

// RevokeReceipt marks a receipt revoked. The issuer and the owner may
// revoke; revocation is permanent.
func (e *Engine) RevokeReceipt(ctx context.Context, caller types.Identity, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, _, err := e.gate.Owner(ctx)
	if err != nil {
		return err
	}
	if err := e.store.Revoke(ctx, id, caller, owner); err != nil {
		return err
	}
	e.saveSnapshot()
	e.revoked.Add(1)
	receiptsRevoked.Add(1)

	e.emit(ctx, types.Event{
		Kind:    types.EventReceiptRevoked,
		Revoked: &types.ReceiptRevoked{ID: id, RevokedBy: caller},
	})
	return nil
}

// PurgeReceipt deletes a receipt. Owner only; the authorization check runs
// before the existence check. Index entries for the id remain.
func (e *Engine) PurgeReceipt(ctx context.Context, caller types.Identity, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.gate.IsOwner(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return state.ErrNotAuthorized
	}
	if err := e.store.Purge(ctx, id); err != nil {
		return err
	}
	e.saveSnapshot()
	e.purged.Add(1)
	receiptsPurged.Add(1)

	e.emit(ctx, types.Event{
		Kind:   types.EventReceiptPurged,
		Purged: &types.ReceiptPurged{ID: id, PurgedBy: caller},
	})
	return nil
}

// VerifyReceipt reports whether receipt id exists unrevoked with exactly
// the given payer, payee and amount.
func (e *Engine) VerifyReceipt(ctx context.Context, id uint64, payer, payee types.Identity, amount uint64) (bool, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return r.Matches(payer, payee, amount), nil
}

func (e *Engine) GetReceipt(ctx context.Context, id uint64) (types.Receipt, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) ReceiptsIssuedBy(ctx context.Context, issuer types.Identity) ([]uint64, error) {
	return e.index.ListIssuedBy(ctx, issuer)
}

func (e *Engine) ReceiptsReceivedBy(ctx context.Context, payee types.Identity) ([]uint64, error) {
	return e.index.ListReceivedBy(ctx, payee)
}

func (e *Engine) Owner(ctx context.Context) (types.Identity, bool, error) {
	return e.gate.Owner(ctx)
}

func (e *Engine) PubKeyHex() string {
	if len(e.pub) == 0 {
		return ""
	}
	return hex.EncodeToString(e.pub)
}

func (e *Engine) PublicKey() ed25519.PublicKey { return e.pub }

// Stats counts operations since the engine started.
type Stats struct {
	Issued        uint64 `json:"issued"`
	Revoked       uint64 `json:"revoked"`
	Purged        uint64 `json:"purged"`
	Leaves        int    `json:"leaves"`
	PendingLeaves int    `json:"pending_leaves"`
	Checkpoints   int    `json:"checkpoints"`
	Subscribers   int    `json:"subscribers"`
	OwnerClaimed  bool   `json:"owner_claimed"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	_, claimed, err := e.gate.Owner(ctx)
	if err != nil {
		return Stats{}, err
	}
	e.mu.Lock()
	leaves := len(e.journal.Leaves)
	pending := leaves - int(e.journal.Committed)
	checkpoints := len(e.journal.Checkpoints)
	e.mu.Unlock()

	return Stats{
		Issued:        e.issued.Load(),
		Revoked:       e.revoked.Load(),
		Purged:        e.purged.Load(),
		Leaves:        leaves,
		PendingLeaves: pending,
		Checkpoints:   checkpoints,
		Subscribers:   e.hub.Len(),
		OwnerClaimed:  claimed,
	}, nil
}

// Subscribe registers a live event stream; see Hub.Subscribe.
func (e *Engine) Subscribe() chan []byte { return e.hub.Subscribe() }

func (e *Engine) Unsubscribe(ch chan []byte) { e.hub.Unsubscribe(ch) }

func (e *Engine) Close() error {
	e.mu.Lock()
	jerr := e.closeJournal()
	e.mu.Unlock()
	if err := e.backend.Close(); err != nil {
		return err
	}
	return jerr
}
