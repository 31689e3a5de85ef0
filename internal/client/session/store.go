package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sipcard/dispense/internal/client/securestore"
	"github.com/sipcard/dispense/internal/core/domain"
)

const (
	tokensKey      = "auth_tokens"
	firstLaunchKey = "first_launch_seen"
)

// TokenStore owns the persisted AuthTokens record. Writes go through a mutex
// and replace the whole record; reads return the last fully written snapshot
// without locking. Every Save and Clear advances a generation counter so a
// writer can tell whether the record changed under it.
type TokenStore struct {
	backend securestore.Store

	mu     sync.Mutex
	gen    uint64 // guarded by mu
	snap   atomic.Pointer[domain.AuthTokens]
	loaded atomic.Bool
}

// NewTokenStore wraps a secure key-value backend.
func NewTokenStore(backend securestore.Store) *TokenStore {
	return &TokenStore{backend: backend}
}

// Load returns the current record. ok is false when no tokens are stored.
// The backend is read once; later calls are served from memory.
func (s *TokenStore) Load(ctx context.Context) (tok domain.AuthTokens, ok bool, err error) {
	if !s.loaded.Load() {
		if err := s.hydrate(ctx); err != nil {
			return domain.AuthTokens{}, false, err
		}
	}
	p := s.snap.Load()
	if p == nil {
		return domain.AuthTokens{}, false, nil
	}
	return *p, true, nil
}

func (s *TokenStore) hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded.Load() {
		return nil
	}

	raw, err := s.backend.Get(ctx, tokensKey)
	switch {
	case errors.Is(err, securestore.ErrNotFound):
		s.snap.Store(nil)
	case err != nil:
		return fmt.Errorf("load tokens: %w", err)
	default:
		var tok domain.AuthTokens
		if err := json.Unmarshal(raw, &tok); err != nil {
			return fmt.Errorf("decode tokens: %w", err)
		}
		if tok.IsZero() {
			s.snap.Store(nil)
		} else {
			s.snap.Store(&tok)
		}
	}
	s.loaded.Store(true)
	return nil
}

// Generation returns the current record generation.
func (s *TokenStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Save persists tok and swaps the snapshot in one step.
func (s *TokenStore) Save(ctx context.Context, tok domain.AuthTokens) error {
	_, err := s.save(ctx, tok, nil)
	return err
}

// SaveIfCurrent persists tok only if no Save or Clear happened since gen was
// read. saved is false when the record moved on.
func (s *TokenStore) SaveIfCurrent(ctx context.Context, tok domain.AuthTokens, gen uint64) (saved bool, err error) {
	return s.save(ctx, tok, &gen)
}

func (s *TokenStore) save(ctx context.Context, tok domain.AuthTokens, ifGen *uint64) (bool, error) {
	if tok.DisplayName != nil {
		dn := *tok.DisplayName
		tok.DisplayName = &dn
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return false, fmt.Errorf("encode tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ifGen != nil && *ifGen != s.gen {
		return false, nil
	}
	if err := s.backend.Set(ctx, tokensKey, raw); err != nil {
		return false, fmt.Errorf("save tokens: %w", err)
	}
	s.gen++
	s.snap.Store(&tok)
	s.loaded.Store(true)
	return true, nil
}

// Clear removes the record. Clearing an empty store is not an error.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The in-memory record is dropped even if the backend delete fails.
	s.gen++
	s.snap.Store(nil)
	s.loaded.Store(true)
	if err := s.backend.Delete(ctx, tokensKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// FirstLaunchSeen reports whether MarkFirstLaunchSeen was ever called.
func (s *TokenStore) FirstLaunchSeen(ctx context.Context) bool {
	_, err := s.backend.Get(ctx, firstLaunchKey)
	return err == nil
}

// MarkFirstLaunchSeen records that onboarding has been shown.
func (s *TokenStore) MarkFirstLaunchSeen(ctx context.Context) error {
	if err := s.backend.Set(ctx, firstLaunchKey, []byte("1")); err != nil {
		return fmt.Errorf("mark first launch: %w", err)
	}
	return nil
}
