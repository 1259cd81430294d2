package rpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"receiptd/internal/clock"
	"receiptd/internal/tx"
	"receiptd/internal/types"
)

const defaultNonceWindow = 5 * time.Minute

// NonceStore is the seen-set for signed request nonces. Remember reports
// true the first time it records (caller, nonce) and false while an
// earlier record is still within ttl.
type NonceStore interface {
	Remember(ctx context.Context, caller types.Identity, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonces is a process-local NonceStore. Processes that share a
// ledger should share a store too; see the redis package.
type MemoryNonces struct {
	mu        sync.Mutex
	clock     clock.Clock
	seen      map[string]time.Time
	nextSweep time.Time
}

func NewMemoryNonces(clk clock.Clock) *MemoryNonces {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryNonces{clock: clk, seen: make(map[string]time.Time)}
}

func (m *MemoryNonces) Remember(_ context.Context, caller types.Identity, nonce string, ttl time.Duration) (bool, error) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if !now.Before(m.nextSweep) {
		for k, exp := range m.seen {
			if !now.Before(exp) {
				delete(m.seen, k)
			}
		}
		m.nextSweep = now.Add(ttl)
	}
	key := string(caller) + "\x00" + nonce
	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

var (
	errNonceMissing  = errors.New("X-Nonce header is required for this caller")
	errNonceStale    = errors.New("X-Nonce is outside the accepted window")
	errNonceReplayed = errors.New("X-Nonce was already used")
)

// replayGuard bounds signed requests in time and makes each one usable
// once. A nonce is accepted while it is within window of the server clock,
// and remembered for twice the window, which covers that whole span.
type replayGuard struct {
	window time.Duration
	clock  clock.Clock
	nonces NonceStore
}

func newReplayGuard(window time.Duration, clk clock.Clock, nonces NonceStore) *replayGuard {
	if window <= 0 {
		window = defaultNonceWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	if nonces == nil {
		nonces = NewMemoryNonces(clk)
	}
	return &replayGuard{window: window, clock: clk, nonces: nonces}
}

// fresh validates the header value and returns it in canonical form.
func (g *replayGuard) fresh(raw string) (string, error) {
	if raw == "" {
		return "", errNonceMissing
	}
	ms, ok := tx.ParseNonce(raw)
	if !ok {
		return "", errNonceStale
	}
	skew := time.Duration(g.clock.Now().UnixMilli()-ms) * time.Millisecond
	if skew > g.window || skew < -g.window {
		return "", errNonceStale
	}
	return strconv.FormatInt(ms, 10), nil
}

// use records the nonce and fails when caller already spent it.
func (g *replayGuard) use(ctx context.Context, caller types.Identity, nonce string) error {
	ok, err := g.nonces.Remember(ctx, caller, nonce, 2*g.window)
	if err != nil {
		return err
	}
	if !ok {
		return errNonceReplayed
	}
	return nil
}
