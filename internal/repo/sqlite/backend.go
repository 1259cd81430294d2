// Package sqlite stores receipts in a single SQLite file.
package sqlite

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"receiptd/internal/sqlitepool"
	"receiptd/internal/state"
	"receiptd/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS receipts (
	id        INTEGER PRIMARY KEY,
	issuer    TEXT    NOT NULL,
	payer     TEXT    NOT NULL,
	payee     TEXT    NOT NULL,
	amount    INTEGER NOT NULL,
	details   TEXT    NOT NULL,
	timestamp INTEGER NOT NULL,
	revoked   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS receipt_index (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	kind INTEGER NOT NULL,
	who  TEXT    NOT NULL,
	id   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS receipt_index_who ON receipt_index (kind, who, seq);
CREATE TABLE IF NOT EXISTS owner (
	slot INTEGER PRIMARY KEY CHECK (slot = 1),
	who  TEXT NOT NULL
);
`

type Config struct {
	Path     string
	PoolSize int
	Logger   *zap.Logger
}

// Backend implements state.Backend. Amounts are stored as the int64 bit
// pattern of the uint64 value and converted back on read.
type Backend struct {
	pool *sqlitepool.Pool
}

var _ state.Backend = (*Backend)(nil)

func Open(cfg Config) (*Backend, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Close() error { return b.pool.Close() }

// Insert allocates the id, writes the record and both listings in one
// immediate transaction.
func (b *Backend) Insert(ctx context.Context, r types.Receipt) (id uint64, err error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer b.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("insert receipt: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO counters (name, value) VALUES ('receipt_id', 2)
		 ON CONFLICT (name) DO UPDATE SET value = value + 1
		 RETURNING value - 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id = uint64(stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO receipts (id, issuer, payer, payee, amount, details, timestamp, revoked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		&sqlitex.ExecOptions{
			Args: []any{
				int64(id), string(r.Issuer), string(r.Payer), string(r.Payee),
				int64(r.Amount), r.Details, r.Timestamp,
			},
		})
	if err != nil {
		return 0, fmt.Errorf("insert receipt %d: %w", id, err)
	}

	for _, entry := range []struct {
		kind state.IndexKind
		who  types.Identity
	}{
		{state.IndexIssuer, r.Issuer},
		{state.IndexPayee, r.Payee},
	} {
		err = sqlitex.Execute(conn, `INSERT INTO receipt_index (kind, who, id) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{int64(entry.kind), string(entry.who), int64(id)}})
		if err != nil {
			return 0, fmt.Errorf("append %s index: %w", entry.kind, err)
		}
	}
	return id, nil
}

func (b *Backend) Get(ctx context.Context, id uint64) (types.Receipt, bool, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return types.Receipt{}, false, err
	}
	defer b.pool.Put(conn)

	var (
		r     types.Receipt
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, issuer, payer, payee, amount, details, timestamp, revoked
		 FROM receipts WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				r = types.Receipt{
					ID:        uint64(stmt.ColumnInt64(0)),
					Issuer:    types.Identity(stmt.ColumnText(1)),
					Payer:     types.Identity(stmt.ColumnText(2)),
					Payee:     types.Identity(stmt.ColumnText(3)),
					Amount:    uint64(stmt.ColumnInt64(4)),
					Details:   stmt.ColumnText(5),
					Timestamp: stmt.ColumnInt64(6),
					Revoked:   stmt.ColumnInt64(7) != 0,
				}
				return nil
			},
		})
	if err != nil {
		return types.Receipt{}, false, err
	}
	return r, found, nil
}

// SetRevoked updates only a live record. When nothing changed it looks
// again inside the same transaction to tell a missing record from a
// revoked one.
func (b *Backend) SetRevoked(ctx context.Context, id uint64) (err error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer b.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("revoke receipt %d: begin transaction: %w", id, err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `UPDATE receipts SET revoked = 1 WHERE id = ? AND revoked = 0`,
		&sqlitex.ExecOptions{Args: []any{int64(id)}})
	if err != nil {
		return err
	}
	if conn.Changes() > 0 {
		return nil
	}

	var exists bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM receipts WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(id)},
			ResultFunc: func(*sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return err
	}
	if exists {
		return state.ErrAlreadyRevoked
	}
	return state.ErrNotFound
}

func (b *Backend) Delete(ctx context.Context, id uint64) error {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer b.pool.Put(conn)

	return sqlitex.Execute(conn, `DELETE FROM receipts WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(id)}})
}

func (b *Backend) ListIndex(ctx context.Context, kind state.IndexKind, who types.Identity) ([]uint64, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Put(conn)

	ids := []uint64{}
	err = sqlitex.Execute(conn,
		`SELECT id FROM receipt_index WHERE kind = ? AND who = ? ORDER BY seq`,
		&sqlitex.ExecOptions{
			Args: []any{int64(kind), string(who)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, uint64(stmt.ColumnInt64(0)))
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *Backend) Owner(ctx context.Context) (types.Identity, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer b.pool.Put(conn)

	var who string
	err = sqlitex.Execute(conn, `SELECT who FROM owner WHERE slot = 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				who = stmt.ColumnText(0)
				return nil
			},
		})
	return types.Identity(who), err
}

func (b *Backend) SetOwnerOnce(ctx context.Context, who types.Identity) (bool, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO owner (slot, who) VALUES (1, ?) ON CONFLICT (slot) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{string(who)}})
	if err != nil {
		return false, err
	}
	return conn.Changes() > 0, nil
}
