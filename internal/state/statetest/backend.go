// Package statetest holds the behavior every state.Backend must share.
package statetest

import (
	"context"
	"errors"
	"testing"

	"receiptd/internal/state"
	"receiptd/internal/types"
)

// RunBackend runs the backend contract against fresh backends from newBackend.
func RunBackend(t *testing.T, newBackend func(t *testing.T) state.Backend) {
	t.Run("InsertAssignsIDsFromOne", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for want := uint64(1); want <= 5; want++ {
			got, err := b.Insert(ctx, types.Receipt{ID: 99, Issuer: "a", Payer: "a", Payee: "b", Amount: want})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if got != want {
				t.Fatalf("Insert id=%d want %d", got, want)
			}
		}
		if _, ok, err := b.Get(ctx, 99); err != nil || ok {
			t.Fatalf("caller-supplied id was used: ok=%v err=%v", ok, err)
		}
	})

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		want := types.Receipt{
			Issuer: "alice", Payer: "alice", Payee: "bob",
			Amount: 100, Details: "inv-1 ✓", Timestamp: 1700000000,
		}
		id, err := b.Insert(ctx, want)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		want.ID = id
		got, ok, err := b.Get(ctx, id)
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Fatalf("got %+v want %+v", got, want)
		}
		if _, ok, err := b.Get(ctx, id+1); err != nil || ok {
			t.Fatalf("Get(absent): ok=%v err=%v", ok, err)
		}
	})

	t.Run("SetRevokedOnceThenDelete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		id, err := b.Insert(ctx, types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := b.SetRevoked(ctx, id); err != nil {
			t.Fatalf("SetRevoked: %v", err)
		}
		got, _, err := b.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.Revoked {
			t.Fatal("revoked flag not persisted")
		}
		if err := b.SetRevoked(ctx, id); !errors.Is(err, state.ErrAlreadyRevoked) {
			t.Fatalf("second SetRevoked: %v", err)
		}
		if err := b.SetRevoked(ctx, id+1); !errors.Is(err, state.ErrNotFound) {
			t.Fatalf("SetRevoked(absent): %v", err)
		}
		if err := b.Delete(ctx, id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, err := b.Get(ctx, id); err != nil || ok {
			t.Fatalf("Get after delete: ok=%v err=%v", ok, err)
		}
		if err := b.SetRevoked(ctx, id); !errors.Is(err, state.ErrNotFound) {
			t.Fatalf("SetRevoked after delete: %v", err)
		}
	})

	t.Run("InsertListsIssuerAndPayeeInOrder", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		inserts := []struct{ issuer, payee types.Identity }{
			{"alice", "bob"},
			{"carol", "alice"},
			{"alice", "alice"},
			{"alice", "dave"},
		}
		for _, in := range inserts {
			if _, err := b.Insert(ctx, types.Receipt{Issuer: in.issuer, Payer: in.issuer, Payee: in.payee, Amount: 1}); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		issued, err := b.ListIndex(ctx, state.IndexIssuer, "alice")
		if err != nil {
			t.Fatalf("ListIndex: %v", err)
		}
		if len(issued) != 3 || issued[0] != 1 || issued[1] != 3 || issued[2] != 4 {
			t.Fatalf("issued=%v", issued)
		}
		received, err := b.ListIndex(ctx, state.IndexPayee, "alice")
		if err != nil {
			t.Fatalf("ListIndex: %v", err)
		}
		if len(received) != 2 || received[0] != 2 || received[1] != 3 {
			t.Fatalf("received=%v", received)
		}
		empty, err := b.ListIndex(ctx, state.IndexIssuer, "nobody")
		if err != nil {
			t.Fatalf("ListIndex: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected empty, got %v", empty)
		}
	})

	t.Run("DeleteKeepsListings", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		id, err := b.Insert(ctx, types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := b.Delete(ctx, id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		issued, err := b.ListIndex(ctx, state.IndexIssuer, "a")
		if err != nil || len(issued) != 1 || issued[0] != id {
			t.Fatalf("issued=%v err=%v", issued, err)
		}
		next, err := b.Insert(ctx, types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1})
		if err != nil || next != id+1 {
			t.Fatalf("id after delete=%d err=%v want %d", next, err, id+1)
		}
	})

	t.Run("OwnerSetOnce", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if o, err := b.Owner(ctx); err != nil || o != "" {
			t.Fatalf("Owner before claim: %q %v", o, err)
		}
		ok, err := b.SetOwnerOnce(ctx, "root")
		if err != nil || !ok {
			t.Fatalf("first SetOwnerOnce: ok=%v err=%v", ok, err)
		}
		ok, err = b.SetOwnerOnce(ctx, "mallory")
		if err != nil || ok {
			t.Fatalf("second SetOwnerOnce: ok=%v err=%v", ok, err)
		}
		if o, err := b.Owner(ctx); err != nil || o != "root" {
			t.Fatalf("Owner: %q %v", o, err)
		}
	})
}
