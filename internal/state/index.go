package state

import (
	"context"
	"fmt"

	"receiptd/internal/types"
)

// Index reads the append-only issuer and payee listings. Entries are
// written by Backend.Insert together with the record and never removed,
// so purged ids stay listed.
type Index struct {
	b Backend
}

func NewIndex(b Backend) *Index { return &Index{b: b} }

func (x *Index) ListIssuedBy(ctx context.Context, issuer types.Identity) ([]uint64, error) {
	return x.list(ctx, IndexIssuer, issuer)
}

func (x *Index) ListReceivedBy(ctx context.Context, payee types.Identity) ([]uint64, error) {
	return x.list(ctx, IndexPayee, payee)
}

func (x *Index) list(ctx context.Context, kind IndexKind, who types.Identity) ([]uint64, error) {
	ids, err := x.b.ListIndex(ctx, kind, who)
	if err != nil {
		return nil, fmt.Errorf("list %s index %q: %w", kind, who, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}
