package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"receiptd/internal/codec"
	"receiptd/internal/state"
	"receiptd/internal/types"
)

func TestCommitCheckpointRequiresPending(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.CommitCheckpoint(context.Background()); !errors.Is(err, ErrNoPending) {
		t.Fatalf("empty commit: %v", err)
	}
	if _, ok := e.LatestCheckpoint(); ok {
		t.Fatal("latest checkpoint before any commit")
	}
}

func TestCheckpointRoundsAndProofs(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustIssue(t, e, "I", "A", "B", uint64(i+1))
	}
	c1, err := e.CommitCheckpoint(ctx)
	if err != nil {
		t.Fatalf("CommitCheckpoint: %v", err)
	}
	if c1.Round != 1 || c1.FromID != 1 || c1.ToID != 3 || c1.LeafCount != 3 || c1.Root == "" {
		t.Fatalf("checkpoint 1=%+v", c1)
	}
	if !VerifyCheckpoint(e.PublicKey(), c1) {
		t.Fatal("checkpoint signature does not verify")
	}
	tampered := c1
	tampered.LeafCount++
	if VerifyCheckpoint(e.PublicKey(), tampered) {
		t.Fatal("tampered checkpoint verified")
	}
	if _, err := e.CommitCheckpoint(ctx); !errors.Is(err, ErrNoPending) {
		t.Fatalf("commit with nothing new: %v", err)
	}

	mustIssue(t, e, "I", "A", "B", 9)
	mustIssue(t, e, "I", "A", "B", 10)
	c2, err := e.CommitCheckpoint(ctx)
	if err != nil {
		t.Fatalf("CommitCheckpoint: %v", err)
	}
	if c2.Round != 2 || c2.FromID != 4 || c2.ToID != 5 || c2.LeafCount != 2 {
		t.Fatalf("checkpoint 2=%+v", c2)
	}
	if latest, ok := e.LatestCheckpoint(); !ok || latest != c2 {
		t.Fatalf("latest=%+v ok=%v", latest, ok)
	}
	if got, ok := e.Checkpoint(1); !ok || got != c1 {
		t.Fatalf("Checkpoint(1)=%+v ok=%v", got, ok)
	}
	if _, ok := e.Checkpoint(3); ok {
		t.Fatal("Checkpoint(3) should not exist")
	}

	for _, tc := range []struct{ round, id uint64 }{{1, 1}, {1, 2}, {1, 3}, {2, 4}, {2, 5}} {
		p, err := e.InclusionProof(tc.round, tc.id)
		if err != nil {
			t.Fatalf("InclusionProof(%d,%d): %v", tc.round, tc.id, err)
		}
		if !VerifyProof(p) {
			t.Fatalf("proof for %d in round %d does not verify", tc.id, tc.round)
		}
	}
	if _, err := e.InclusionProof(1, 4); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("id from another round: %v", err)
	}
	if _, err := e.InclusionProof(7, 1); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("unknown round: %v", err)
	}

	if last := sink.last(); last.Kind != types.EventCheckpointCommitted || last.Checkpoint.Round != 2 {
		t.Fatalf("last event=%+v", last)
	}
}

func TestRevocationDoesNotChangeProvenLeaf(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustIssue(t, e, "I", "A", "B", 5)
	mustIssue(t, e, "I", "A", "B", 6)
	if _, err := e.CommitCheckpoint(ctx); err != nil {
		t.Fatalf("CommitCheckpoint: %v", err)
	}
	before, err := e.InclusionProof(1, id)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	if err := e.RevokeReceipt(ctx, "I", id); err != nil {
		t.Fatalf("RevokeReceipt: %v", err)
	}
	after, err := e.InclusionProof(1, id)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	if before.Leaf != after.Leaf || !VerifyProof(after) {
		t.Fatal("revocation changed a sealed leaf")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	open := func() *Engine {
		e, err := NewEngine(Options{
			Backend: state.NewMemoryBackend(),
			KeyPath: filepath.Join(dir, "node_key.json"),
			DataDir: dir,
		})
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		return e
	}

	e := open()
	if err := e.ClaimOwnership(ctx, "root"); err != nil {
		t.Fatalf("ClaimOwnership: %v", err)
	}
	id := mustIssue(t, e, "I", "A", "B", 11)
	mustIssue(t, e, "I", "A", "C", 12)
	if err := e.RevokeReceipt(ctx, "I", id); err != nil {
		t.Fatalf("RevokeReceipt: %v", err)
	}
	c, err := e.CommitCheckpoint(ctx)
	if err != nil {
		t.Fatalf("CommitCheckpoint: %v", err)
	}
	pub := e.PubKeyHex()
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e = open()
	t.Cleanup(func() { _ = e.Close() })
	if e.PubKeyHex() != pub {
		t.Fatal("node key changed across restart")
	}
	r, err := e.GetReceipt(ctx, id)
	if err != nil || !r.Revoked || r.Amount != 11 {
		t.Fatalf("restored receipt=%+v err=%v", r, err)
	}
	if owner, _, _ := e.Owner(ctx); owner != "root" {
		t.Fatalf("owner=%q", owner)
	}
	if err := e.ClaimOwnership(ctx, "mallory"); !errors.Is(err, state.ErrAlreadyClaimed) {
		t.Fatalf("claim after restart: %v", err)
	}
	if next := mustIssue(t, e, "I", "A", "B", 1); next != 3 {
		t.Fatalf("next id after restart=%d want 3", next)
	}
	if latest, ok := e.LatestCheckpoint(); !ok || latest != c {
		t.Fatalf("latest checkpoint=%+v ok=%v", latest, ok)
	}
	if ids, _ := e.ReceiptsReceivedBy(ctx, "C"); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("payee index after restart=%v", ids)
	}
}

func TestJournalDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	open := func() *Engine {
		e, err := NewEngine(Options{Backend: state.NewMemoryBackend(), DataDir: dir})
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		return e
	}
	journalPath := filepath.Join(dir, "journal.cbor")

	e := open()
	mustIssue(t, e, "I", "A", "B", 1)
	mustIssue(t, e, "I", "A", "B", 2)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	whole, err := os.ReadFile(journalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}

	// a crash halfway through the next append
	rec, err := codec.MarshalCBOR(journalRecord{Leaf: &types.Leaf{ID: 3, Digest: make([]byte, 32)}})
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if err := os.WriteFile(journalPath, append(whole, rec[:len(rec)/2]...), 0o644); err != nil {
		t.Fatalf("write torn journal: %v", err)
	}

	e = open()
	if st, _ := e.Stats(context.Background()); st.Leaves != 2 {
		t.Fatalf("leaves after torn tail=%d want 2", st.Leaves)
	}
	mustIssue(t, e, "I", "A", "B", 3)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e = open()
	defer e.Close()
	st, _ := e.Stats(context.Background())
	if st.Leaves != 3 {
		t.Fatalf("leaves after append past torn tail=%d want 3", st.Leaves)
	}
	if _, err := e.CommitCheckpoint(context.Background()); err != nil {
		t.Fatalf("CommitCheckpoint: %v", err)
	}
}

func TestJournalGrowsByAppend(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(Options{Backend: state.NewMemoryBackend(), DataDir: dir})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	journalPath := filepath.Join(dir, "journal.cbor")

	mustIssue(t, e, "I", "A", "B", 1)
	first, err := os.ReadFile(journalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	for i := 0; i < 10; i++ {
		mustIssue(t, e, "I", "A", "B", uint64(i))
	}
	after, err := os.ReadFile(journalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if !bytes.HasPrefix(after, first) {
		t.Fatal("journal was rewritten instead of appended")
	}
	if len(after) != 11*len(first) {
		t.Fatalf("journal size=%d want %d", len(after), 11*len(first))
	}
}
