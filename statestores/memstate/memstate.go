// Package memstate implements an in-memory ddns.StateStore.
package memstate

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Store is a mutex-guarded, non-durable ddns.StateStore. Flush is a no-op:
// there is nothing to persist.
type Store struct {
	mu      sync.RWMutex
	records map[ddns.DomainName]ddns.StateRecord
}

var _ ddns.StateStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[ddns.DomainName]ddns.StateRecord)}
}

func (s *Store) GetLastIP(ctx context.Context, name ddns.DomainName) (netip.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return netip.Addr{}, nil
	}
	return rec.LastIP, nil
}

func (s *Store) GetRecord(ctx context.Context, name ddns.DomainName) (ddns.StateRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	return rec, ok, nil
}

func (s *Store) SetLastIP(ctx context.Context, name ddns.DomainName, ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.LastIP = ip
	rec.LastUpdated = time.Now().UTC()
	s.records[name] = rec
	return nil
}

func (s *Store) SetRecord(ctx context.Context, name ddns.DomainName, record ddns.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = record
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, name ddns.DomainName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *Store) ListRecords(ctx context.Context) ([]ddns.DomainName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]ddns.DomainName, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) Flush(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
