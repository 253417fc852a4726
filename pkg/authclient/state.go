// Package authclient is the storefront-side SDK: it mirrors auth state across
// processes, watches sessions for expiry, and gates page mounts with the
// guard chain. It talks to the gateway only through its public endpoints.
package authclient

import (
	"encoding/json"
	"sync"

	"storegate/pkg/domain"
)

// Storage keys for the durable auth mirror.
const (
	userKey  = "auth_user"
	tokenKey = "auth_token"
)

// Storage is a durable key-value mirror shared between storefront processes
// (tabs, SSR workers). Watch delivers the key of every externally visible
// change; implementations may coalesce but must not drop the last change.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Watch() <-chan string
}

// State is the in-process view of the auth mirror. Reads hit memory; writes
// go through to storage so other processes observe them.
type State struct {
	storage Storage

	mu       sync.RWMutex
	identity *domain.Identity
	token    string

	// selfEvents counts pending watch notifications caused by this process's
	// own writes, so the watch loop reacts only to OTHER processes (the way
	// browser storage events fire only in other tabs).
	selfMu     sync.Mutex
	selfEvents map[string]int
}

// NewState builds a State and hydrates it from storage, so a fresh process
// starts from whatever the last one persisted.
func NewState(storage Storage) *State {
	s := &State{storage: storage, selfEvents: make(map[string]int)}
	s.hydrate()
	return s
}

func (s *State) hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := s.storage.Get(userKey); ok {
		var id domain.Identity
		if err := json.Unmarshal([]byte(raw), &id); err == nil {
			s.identity = &id
		}
	}
	if tok, ok := s.storage.Get(tokenKey); ok {
		s.token = tok
	}
}

// SetIdentity records a successful authorization.
func (s *State) SetIdentity(id domain.Identity, token string) {
	s.mu.Lock()
	s.identity = &id
	s.token = token
	s.mu.Unlock()

	if raw, err := json.Marshal(id); err == nil {
		s.markSelf(userKey)
		s.storage.Set(userKey, string(raw))
	}
	if token != "" {
		s.markSelf(tokenKey)
		s.storage.Set(tokenKey, token)
	}
}

// Clear wipes identity and token from memory and storage. Called on every
// unauthorized outcome so stale state never leaks into the next check.
func (s *State) Clear() {
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.mu.Unlock()

	s.markSelf(userKey)
	s.storage.Delete(userKey)
	s.markSelf(tokenKey)
	s.storage.Delete(tokenKey)
}

func (s *State) markSelf(key string) {
	s.selfMu.Lock()
	s.selfEvents[key]++
	s.selfMu.Unlock()
}

// consumeSelfEvent reports whether a watch notification for key was caused by
// this process's own write, consuming one pending marker if so.
func (s *State) consumeSelfEvent(key string) bool {
	s.selfMu.Lock()
	defer s.selfMu.Unlock()
	if s.selfEvents[key] > 0 {
		s.selfEvents[key]--
		return true
	}
	return false
}

// Identity returns the cached identity, nil when signed out.
func (s *State) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	out := *s.identity
	return &out
}

// Token returns the mirrored role-prefixed token, empty when signed out.
func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Resync re-reads storage after an external change.
func (s *State) Resync() {
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.mu.Unlock()
	s.hydrate()
}

// MemoryStorage is a Storage for tests and single-process embedding. Every
// Set/Delete is broadcast to watchers; slow watchers miss intermediate
// updates but always receive the latest key.
type MemoryStorage struct {
	mu       sync.Mutex
	values   map[string]string
	watchers []chan string
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	watchers := append([]chan string(nil), m.watchers...)
	m.mu.Unlock()
	broadcast(watchers, key)
}

func (m *MemoryStorage) Delete(key string) {
	m.mu.Lock()
	delete(m.values, key)
	watchers := append([]chan string(nil), m.watchers...)
	m.mu.Unlock()
	broadcast(watchers, key)
}

func (m *MemoryStorage) Watch() <-chan string {
	ch := make(chan string, 8)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func broadcast(watchers []chan string, key string) {
	for _, ch := range watchers {
		select {
		case ch <- key:
		default:
			// Drop rather than block; the watcher will resync on its next
			// received event.
		}
	}
}
