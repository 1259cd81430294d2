package state

import (
	"context"

	"receiptd/internal/types"
)

type IndexKind uint8

const (
	IndexIssuer IndexKind = iota + 1
	IndexPayee
)

func (k IndexKind) String() string {
	switch k {
	case IndexIssuer:
		return "issuer"
	case IndexPayee:
		return "payee"
	}
	return "unknown"
}

// Backend is the keyed storage the core runs on. Every method is one
// atomic step, so a failed call leaves nothing behind and several
// processes sharing a backend cannot both win a conditional write.
type Backend interface {
	// Insert allocates the next id, stores r under it and appends the id
	// to the issuer and payee listings, all or nothing. r.ID is ignored.
	// Ids start at 1 and are never reused.
	Insert(ctx context.Context, r types.Receipt) (uint64, error)

	Get(ctx context.Context, id uint64) (types.Receipt, bool, error)
	// SetRevoked flips the revoked flag only if it is still clear. It
	// fails with ErrNotFound for a missing record and ErrAlreadyRevoked
	// when the flag is already set.
	SetRevoked(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error

	ListIndex(ctx context.Context, kind IndexKind, who types.Identity) ([]uint64, error)

	// Owner returns "" when no owner has been claimed.
	Owner(ctx context.Context) (types.Identity, error)
	// SetOwnerOnce stores who as owner only if none is set and reports
	// whether it did.
	SetOwnerOnce(ctx context.Context, who types.Identity) (bool, error)

	Close() error
}
