package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"

	"receiptd/internal/state"
	"receiptd/internal/state/statetest"
	"receiptd/internal/types"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(Config{Path: filepath.Join(t.TempDir(), "receipts.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendContract(t *testing.T) {
	statetest.RunBackend(t, func(t *testing.T) state.Backend {
		return openTestBackend(t)
	})
}

func TestAmountAboveInt64Survives(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	id, err := b.Insert(ctx, types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: math.MaxUint64})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := b.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Amount != math.MaxUint64 {
		t.Fatalf("amount=%d", got.Amount)
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	ctx := context.Background()
	r := types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1}

	b, err := Open(Config{Path: path, PoolSize: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := b.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = Open(Config{Path: path, PoolSize: 1})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	id, err := b.Insert(ctx, r)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 4 {
		t.Fatalf("id after reopen=%d want 4", id)
	}
}

func TestInsertRollsBackOnIndexFailure(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	r := types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1}

	exec := func(script string) {
		t.Helper()
		conn, err := b.pool.Take(ctx)
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		defer b.pool.Put(conn)
		if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
			t.Fatalf("script: %v", err)
		}
	}
	exec(`CREATE TRIGGER reject_payee BEFORE INSERT ON receipt_index
		WHEN NEW.kind = 2 BEGIN SELECT RAISE(ABORT, 'index down'); END;`)

	if _, err := b.Insert(ctx, r); err == nil {
		t.Fatal("Insert succeeded with a failing index")
	}
	if _, ok, err := b.Get(ctx, 1); err != nil || ok {
		t.Fatalf("record left behind: ok=%v err=%v", ok, err)
	}
	issued, err := b.ListIndex(ctx, state.IndexIssuer, "a")
	if err != nil || len(issued) != 0 {
		t.Fatalf("issuer listing left behind: %v err=%v", issued, err)
	}

	exec(`DROP TRIGGER reject_payee;`)
	id, err := b.Insert(ctx, r)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Fatalf("id after rolled back insert=%d want 1", id)
	}
}

func TestRevokeRaceAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	ctx := context.Background()
	open := func() *Backend {
		b, err := Open(Config{Path: path, PoolSize: 1})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	}
	first, second := open(), open()

	id, err := first.Insert(ctx, types.Receipt{Issuer: "a", Payer: "a", Payee: "b", Amount: 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// both processes have read the record as live
	for _, b := range []*Backend{first, second} {
		r, ok, err := b.Get(ctx, id)
		if err != nil || !ok || r.Revoked {
			t.Fatalf("Get: %+v ok=%v err=%v", r, ok, err)
		}
	}
	if err := first.SetRevoked(ctx, id); err != nil {
		t.Fatalf("first SetRevoked: %v", err)
	}
	if err := second.SetRevoked(ctx, id); !errors.Is(err, state.ErrAlreadyRevoked) {
		t.Fatalf("second SetRevoked: %v", err)
	}
}

func TestSetRevokedUnknown(t *testing.T) {
	b := openTestBackend(t)
	if err := b.SetRevoked(context.Background(), 5); err != state.ErrNotFound {
		t.Fatalf("SetRevoked(unknown)=%v", err)
	}
}
