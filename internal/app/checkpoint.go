package app

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"

	"receiptd/internal/codec"
	"receiptd/internal/merkle"
	"receiptd/internal/state"
	"receiptd/internal/tx"
	"receiptd/internal/types"
)

// ErrNoPending is returned by CommitCheckpoint when nothing was issued
// since the previous checkpoint.
var ErrNoPending = errors.New("no_pending_receipts")

// Proof shows that a receipt's issuance digest is under a checkpoint root.
type Proof struct {
	Checkpoint types.Checkpoint `json:"checkpoint"`
	ID         uint64           `json:"id"`
	Leaf       string           `json:"leaf"` // hex digest
	Path       []merkle.Step    `json:"path"`
}

func (e *Engine) appendLeaf(r types.Receipt) {
	leaf := types.Leaf{ID: r.ID, Digest: tx.LeafDigest(r)}
	e.journal.Leaves = append(e.journal.Leaves, leaf)
	e.appendJournal(journalRecord{Leaf: &leaf})
}

// CommitCheckpoint seals every leaf since the previous checkpoint under a
// signed merkle root.
func (e *Engine) CommitCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.journal.Committed
	to := uint64(len(e.journal.Leaves))
	if from >= to {
		return types.Checkpoint{}, ErrNoPending
	}
	pending := e.journal.Leaves[from:to]

	c := types.Checkpoint{
		Round:     uint64(len(e.journal.Checkpoints) + 1),
		FromID:    pending[0].ID,
		ToID:      pending[len(pending)-1].ID,
		LeafCount: uint64(len(pending)),
		Root:      hex.EncodeToString(merkle.Root(digests(pending))),
		TimeUTC:   e.clock.Now().Unix(),
	}
	if len(e.priv) > 0 {
		c.SignatureHex = hex.EncodeToString(ed25519.Sign(e.priv, CanonicalCheckpointBytes(c)))
	}

	e.journal.Checkpoints = append(e.journal.Checkpoints, c)
	e.journal.Committed = to
	e.appendJournal(journalRecord{Checkpoint: &c})

	e.emit(ctx, types.Event{
		Kind:       types.EventCheckpointCommitted,
		Checkpoint: &types.CheckpointCommitted{Round: c.Round, Root: c.Root},
	})
	return c, nil
}

// Checkpoint returns round n, counting from 1.
func (e *Engine) Checkpoint(n uint64) (types.Checkpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == 0 || n > uint64(len(e.journal.Checkpoints)) {
		return types.Checkpoint{}, false
	}
	return e.journal.Checkpoints[n-1], true
}

func (e *Engine) LatestCheckpoint() (types.Checkpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.journal.Checkpoints) == 0 {
		return types.Checkpoint{}, false
	}
	return e.journal.Checkpoints[len(e.journal.Checkpoints)-1], true
}

// InclusionProof builds the merkle path for receipt id under checkpoint n.
// It fails with state.ErrNotFound when either is unknown or id was not
// sealed by round n.
func (e *Engine) InclusionProof(n, id uint64) (Proof, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n == 0 || n > uint64(len(e.journal.Checkpoints)) {
		return Proof{}, state.ErrNotFound
	}
	var start uint64
	for _, c := range e.journal.Checkpoints[:n-1] {
		start += c.LeafCount
	}
	c := e.journal.Checkpoints[n-1]
	leaves := e.journal.Leaves[start : start+c.LeafCount]

	for i, l := range leaves {
		if l.ID != id {
			continue
		}
		path, ok := merkle.Proof(digests(leaves), i)
		if !ok {
			return Proof{}, state.ErrNotFound
		}
		return Proof{Checkpoint: c, ID: id, Leaf: hex.EncodeToString(l.Digest), Path: path}, nil
	}
	return Proof{}, state.ErrNotFound
}

// CanonicalCheckpointBytes is the message the node signs: the deterministic
// CBOR encoding of the checkpoint without its signature.
func CanonicalCheckpointBytes(c types.Checkpoint) []byte {
	c.SignatureHex = ""
	b, err := codec.MarshalCBOR(c)
	if err != nil {
		panic("app: checkpoint encoding: " + err.Error())
	}
	return b
}

// VerifyCheckpoint checks the node signature on c.
func VerifyCheckpoint(pub ed25519.PublicKey, c types.Checkpoint) bool {
	sig, err := hex.DecodeString(c.SignatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, CanonicalCheckpointBytes(c), sig)
}

// VerifyProof checks p against its own checkpoint root.
func VerifyProof(p Proof) bool {
	root, err := hex.DecodeString(p.Checkpoint.Root)
	if err != nil {
		return false
	}
	leaf, err := hex.DecodeString(p.Leaf)
	if err != nil {
		return false
	}
	return merkle.Verify(root, leaf, p.Path)
}

func digests(leaves []types.Leaf) [][]byte {
	out := make([][]byte, len(leaves))
	for i, l := range leaves {
		out[i] = l.Digest
	}
	return out
}
