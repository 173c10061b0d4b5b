package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore holds sessions in a process-local map. Suitable for
// development and single-replica deployments; multi-replica setups need the
// Redis or Postgres store so replicas agree on who is signed in.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
}

// NewMemorySessionStore constructs an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SessionRecord)}
}

// Save stores or refreshes the record keyed by its token.
func (s *MemorySessionStore) Save(record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[record.Token] = record
	return nil
}

// Get looks up the record for a token.
func (s *MemorySessionStore) Get(token string) (SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sessions[token]
	return record, ok, nil
}

// Delete forgets the token. Deleting an unknown token is not an error.
func (s *MemorySessionStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// PurgeExpired drops every session whose idle or absolute expiry has passed.
func (s *MemorySessionStore) PurgeExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.sessions {
		expired := now.After(record.ExpiresAt)
		if !record.AbsoluteExpiresAt.IsZero() && now.After(record.AbsoluteExpiresAt) {
			expired = true
		}
		if expired {
			delete(s.sessions, token)
		}
	}
	return nil
}

// Ping reports success; there is no backend to reach.
func (s *MemorySessionStore) Ping(context.Context) error {
	return nil
}
