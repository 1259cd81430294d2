package state

import (
	"context"
	"fmt"

	"receiptd/internal/types"
)

// Gate owns the single owner slot. The slot goes from unset to set exactly
// once; there is no transfer and no relinquish.
type Gate struct {
	b Backend
}

func NewGate(b Backend) *Gate { return &Gate{b: b} }

// Claim sets caller as owner. The null caller gets ErrNotAuthorized; a
// second claim fails with ErrAlreadyClaimed, even from the current owner.
func (g *Gate) Claim(ctx context.Context, caller types.Identity) error {
	if caller.IsNull() {
		return ErrNotAuthorized
	}
	ok, err := g.b.SetOwnerOnce(ctx, caller)
	if err != nil {
		return fmt.Errorf("claim owner: %w", err)
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

// Owner returns the owner and whether one has been claimed.
func (g *Gate) Owner(ctx context.Context) (types.Identity, bool, error) {
	o, err := g.b.Owner(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read owner: %w", err)
	}
	return o, !o.IsNull(), nil
}

// IsOwner is false for every caller until a claim happens.
func (g *Gate) IsOwner(ctx context.Context, caller types.Identity) (bool, error) {
	if caller.IsNull() {
		return false, nil
	}
	o, _, err := g.Owner(ctx)
	if err != nil {
		return false, err
	}
	return o == caller, nil
}
