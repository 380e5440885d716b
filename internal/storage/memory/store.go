// Package memory is an in-process implementation of storage.Store used by
// tests and stub mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/streme-fun/streme-bot/internal/storage"
)

// Store keeps token records and claims in maps guarded by one mutex, which
// makes Claim and Insert atomic with respect to each other.
type Store struct {
	mu         sync.RWMutex
	byAddress  map[string]*storage.TokenRecord
	byCastHash map[string]*storage.TokenRecord
	claims     map[string]struct{}
	order      []string // contract addresses in insertion order
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byAddress:  make(map[string]*storage.TokenRecord),
		byCastHash: make(map[string]*storage.TokenRecord),
		claims:     make(map[string]struct{}),
	}
}

// Insert adds a record. Returns ErrDuplicateKey on address or cast hash conflict.
func (s *Store) Insert(_ context.Context, r *storage.TokenRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAddress[r.ContractAddress]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.byCastHash[r.CastHash]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *r
	s.byAddress[cp.ContractAddress] = &cp
	s.byCastHash[cp.CastHash] = &cp
	s.order = append(s.order, cp.ContractAddress)
	return nil
}

// GetByAddress returns a copy of the record for address.
func (s *Store) GetByAddress(_ context.Context, address string) (*storage.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetByCastHash returns a copy of the record created for castHash.
func (s *Store) GetByCastHash(_ context.Context, castHash string) (*storage.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byCastHash[castHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns up to limit records ordered by timestamp, newest first.
func (s *Store) List(_ context.Context, limit int) ([]*storage.TokenRecord, error) {
	s.mu.RLock()
	out := make([]*storage.TokenRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.byAddress[s.order[i]]
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Claim reserves castHash. A hash that already has a record counts as claimed.
func (s *Store) Claim(_ context.Context, castHash string) error {
	if castHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[castHash]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.byCastHash[castHash]; ok {
		return storage.ErrDuplicateKey
	}
	s.claims[castHash] = struct{}{}
	return nil
}

// Release drops the reservation for castHash.
func (s *Store) Release(_ context.Context, castHash string) error {
	s.mu.Lock()
	delete(s.claims, castHash)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}
