package state

import (
	"context"
	"errors"
	"fmt"

	"receiptd/internal/types"
)

// Store is the source of truth for receipts and the only place ids are
// allocated.
type Store struct {
	b Backend
}

func NewStore(b Backend) *Store { return &Store{b: b} }

// Issue validates the parties, then allocates an id and inserts the record
// with its listings in one backend step. A rejected or failed issue never
// consumes an id and leaves no partial record.
func (s *Store) Issue(ctx context.Context, issuer, payer, payee types.Identity, amount uint64, details string, now int64) (types.Receipt, error) {
	if payer.IsNull() || payee.IsNull() {
		return types.Receipt{}, ErrInvalidParty
	}
	r := types.Receipt{
		Issuer:    issuer,
		Payer:     payer,
		Payee:     payee,
		Amount:    amount,
		Details:   details,
		Timestamp: now,
	}
	id, err := s.b.Insert(ctx, r)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("insert receipt: %w", err)
	}
	r.ID = id
	return r, nil
}

func (s *Store) Get(ctx context.Context, id uint64) (types.Receipt, error) {
	if id == 0 {
		return types.Receipt{}, ErrNotFound
	}
	r, ok, err := s.b.Get(ctx, id)
	if err != nil {
		return types.Receipt{}, fmt.Errorf("get receipt %d: %w", id, err)
	}
	if !ok {
		return types.Receipt{}, ErrNotFound
	}
	return r, nil
}

// Revoke flips the revoked flag. Checks run in order: existence, already
// revoked, then caller is issuer or owner. The backend repeats the first
// two checks atomically, so a racing revoke from another process still
// loses with ErrAlreadyRevoked or ErrNotFound.
func (s *Store) Revoke(ctx context.Context, id uint64, caller, owner types.Identity) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Revoked {
		return ErrAlreadyRevoked
	}
	if caller.IsNull() || (caller != r.Issuer && caller != owner) {
		return ErrNotAuthorized
	}
	if err := s.b.SetRevoked(ctx, id); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("revoke receipt %d: %w", id, err)
	}
	return nil
}

// Purge removes the record. Index entries are left in place, so listings
// may return ids that no longer resolve.
func (s *Store) Purge(ctx context.Context, id uint64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.b.Delete(ctx, id); err != nil {
		return fmt.Errorf("purge receipt %d: %w", id, err)
	}
	return nil
}
