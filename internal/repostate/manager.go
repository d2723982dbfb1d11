package repostate

import (
	"sync"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

// Manager indexes every repo's RepoState by id, under its own lock
// separate from any individual repo's lock — listing or creating repos
// never blocks on, or is blocked by, a single repo's read/write
// traffic.
type Manager struct {
	mu    sync.RWMutex
	repos map[string]*RepoState
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{repos: make(map[string]*RepoState)}
}

// Get returns the RepoState for id, or a NotFound apierr.
func (m *Manager) Get(id string) (*RepoState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.repos[id]
	if !ok {
		return nil, apierr.NotFound("repo %s not found", id)
	}
	return rs, nil
}

// Put installs rs under id, overwriting any existing entry — used both
// by startup hydration and by repo creation.
func (m *Manager) Put(id string, rs *RepoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[id] = rs
}

// Create installs a brand new repo seeded with DefaultRepoState, unless
// id is already taken.
func (m *Manager) Create(st *store.Store, id, defaultUser string) (*RepoState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.repos[id]; exists {
		return nil, apierr.Conflict("repo %s already exists", id)
	}
	rs := &RepoState{repo: DefaultRepoState(id, defaultUser), st: st}
	if err := Persist(st, rs.repo); err != nil {
		return nil, apierr.Internal(err)
	}
	m.repos[id] = rs
	return rs, nil
}

// IDs returns every known repo id.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.repos))
	for id := range m.repos {
		out = append(out, id)
	}
	return out
}
