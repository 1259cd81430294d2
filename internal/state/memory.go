package state

import (
	"context"
	"sync"

	"receiptd/internal/types"
)

type indexKey struct {
	kind IndexKind
	who  types.Identity
}

// MemoryBackend keeps everything in process memory. Reads take a shared
// lock so they never observe a half-written record.
type MemoryBackend struct {
	mu       sync.RWMutex
	next     uint64
	receipts map[uint64]types.Receipt
	index    map[indexKey][]uint64
	owner    types.Identity
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		next:     1,
		receipts: make(map[uint64]types.Receipt),
		index:    make(map[indexKey][]uint64),
	}
}

func (m *MemoryBackend) Insert(_ context.Context, r types.Receipt) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.next
	m.next++
	m.receipts[r.ID] = r
	m.appendIndex(IndexIssuer, r.Issuer, r.ID)
	m.appendIndex(IndexPayee, r.Payee, r.ID)
	return r.ID, nil
}

func (m *MemoryBackend) appendIndex(kind IndexKind, who types.Identity, id uint64) {
	k := indexKey{kind, who}
	m.index[k] = append(m.index[k], id)
}

func (m *MemoryBackend) Get(_ context.Context, id uint64) (types.Receipt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[id]
	return r, ok, nil
}

func (m *MemoryBackend) SetRevoked(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return ErrNotFound
	}
	if r.Revoked {
		return ErrAlreadyRevoked
	}
	r.Revoked = true
	m.receipts[id] = r
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receipts, id)
	return nil
}

func (m *MemoryBackend) ListIndex(_ context.Context, kind IndexKind, who types.Identity) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.index[indexKey{kind, who}]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *MemoryBackend) Owner(context.Context) (types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owner, nil
}

func (m *MemoryBackend) SetOwnerOnce(_ context.Context, who types.Identity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" {
		return false, nil
	}
	m.owner = who
	return true, nil
}

func (m *MemoryBackend) Close() error { return nil }

// ---- snapshot/restore ----

// Snapshot is the persisted form of a MemoryBackend.
type Snapshot struct {
	Version  int                 `cbor:"version"`
	NextID   uint64              `cbor:"next_id"`
	Owner    types.Identity      `cbor:"owner"`
	Receipts []types.Receipt     `cbor:"receipts"`
	Issued   map[string][]uint64 `cbor:"issued"`
	Received map[string][]uint64 `cbor:"received"`
}

func (m *MemoryBackend) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		Version:  1,
		NextID:   m.next,
		Owner:    m.owner,
		Receipts: make([]types.Receipt, 0, len(m.receipts)),
		Issued:   make(map[string][]uint64),
		Received: make(map[string][]uint64),
	}
	for _, r := range m.receipts {
		s.Receipts = append(s.Receipts, r)
	}
	for k, ids := range m.index {
		cp := append([]uint64(nil), ids...)
		switch k.kind {
		case IndexIssuer:
			s.Issued[string(k.who)] = cp
		case IndexPayee:
			s.Received[string(k.who)] = cp
		}
	}
	return s
}

func (m *MemoryBackend) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = s.NextID
	if m.next == 0 {
		m.next = 1
	}
	m.owner = s.Owner
	m.receipts = make(map[uint64]types.Receipt, len(s.Receipts))
	for _, r := range s.Receipts {
		m.receipts[r.ID] = r
	}
	m.index = make(map[indexKey][]uint64, len(s.Issued)+len(s.Received))
	for who, ids := range s.Issued {
		m.index[indexKey{IndexIssuer, types.Identity(who)}] = append([]uint64(nil), ids...)
	}
	for who, ids := range s.Received {
		m.index[indexKey{IndexPayee, types.Identity(who)}] = append([]uint64(nil), ids...)
	}
}
