// Package threads provides the ThreadManager: thread lifecycle, cached
// reconstruction of event logs, and canonical-id resolution across
// compaction chains. The cache is rebuildable from the store at any time;
// no conversation state lives anywhere else.
package threads

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/store"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

// GenerateID returns a fresh thread id.
func GenerateID() string {
	return uuid.NewString()
}

// Manager owns thread metadata and an in-memory cache of reconstructed event
// lists keyed by thread id. Every successful append invalidates the affected
// entry before the next read, keeping the cache coherent.
type Manager struct {
	store *store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string][]threadtypes.ThreadEvent
}

// NewManager creates a Manager over the given event store.
func NewManager(s *store.Store) *Manager {
	return &Manager{
		store: s,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string][]threadtypes.ThreadEvent),
	}
}

// threadLock returns the per-thread mutex, creating it on first use.
// Readers of other threads are never blocked by one thread's update.
func (m *Manager) threadLock(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[threadID] = lock
	}
	return lock
}

// CreateThread creates a fresh root thread and returns its id. The canonical
// id of a fresh thread is its own id.
func (m *Manager) CreateThread(ctx context.Context) (string, error) {
	id := GenerateID()
	if err := m.store.CreateThread(ctx, id, id, nil); err != nil {
		return "", err
	}
	logger.G(ctx).WithField("thread_id", id).Debug("created thread")
	return id, nil
}

// CreateChild creates a delegate child thread linked to parentID.
func (m *Manager) CreateChild(ctx context.Context, parentID string) (string, error) {
	if _, err := m.store.GetThread(ctx, parentID); err != nil {
		return "", err
	}
	id := GenerateID()
	if err := m.store.CreateThread(ctx, id, id, &parentID); err != nil {
		return "", err
	}
	logger.G(ctx).WithFields(map[string]any{
		"thread_id": id,
		"parent_id": parentID,
	}).Debug("created delegate thread")
	return id, nil
}

// CreateSuccessor creates the compaction successor of sourceThreadID: a new
// thread sharing the source's canonical id, so references that use the
// canonical id survive the compaction.
func (m *Manager) CreateSuccessor(ctx context.Context, sourceThreadID string) (string, error) {
	source, err := m.store.GetThread(ctx, sourceThreadID)
	if err != nil {
		return "", err
	}
	id := GenerateID()
	if err := m.store.CreateThread(ctx, id, source.CanonicalID, source.ParentID); err != nil {
		return "", err
	}
	logger.G(ctx).WithFields(map[string]any{
		"thread_id":    id,
		"source_id":    sourceThreadID,
		"canonical_id": source.CanonicalID,
	}).Info("created compaction successor thread")
	return id, nil
}

// GetThread returns thread metadata.
func (m *Manager) GetThread(ctx context.Context, threadID string) (threadtypes.Thread, error) {
	return m.store.GetThread(ctx, threadID)
}

// GetOrLoad returns the thread's event log, reconstructing from the store on
// a cache miss. Reconstruction is O(n) in events; the result is cached until
// the next append invalidates it.
func (m *Manager) GetOrLoad(ctx context.Context, threadID string) ([]threadtypes.ThreadEvent, error) {
	m.cacheMu.RLock()
	events, ok := m.cache[threadID]
	m.cacheMu.RUnlock()
	if ok {
		return events, nil
	}

	lock := m.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the thread lock; another goroutine may have loaded it.
	m.cacheMu.RLock()
	events, ok = m.cache[threadID]
	m.cacheMu.RUnlock()
	if ok {
		return events, nil
	}

	events, err := m.store.EventsForThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	m.cacheMu.Lock()
	m.cache[threadID] = events
	m.cacheMu.Unlock()
	return events, nil
}

// AppendEvent persists one event and invalidates the cache entry before
// returning, so the next read observes it.
func (m *Manager) AppendEvent(ctx context.Context, threadID string, kind threadtypes.EventKind, payload threadtypes.Payload) (int64, error) {
	lock := m.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	event := &threadtypes.ThreadEvent{
		ThreadID: threadID,
		Kind:     kind,
		Payload:  payload,
	}
	id, err := m.store.Append(ctx, event)
	if err != nil {
		return 0, err
	}

	m.cacheMu.Lock()
	delete(m.cache, threadID)
	m.cacheMu.Unlock()
	return id, nil
}

// ResolveCanonical returns the id of the newest thread in the compaction
// chain identified by canonicalID.
func (m *Manager) ResolveCanonical(ctx context.Context, canonicalID string) (string, error) {
	chain, err := m.store.FindByCanonical(ctx, canonicalID)
	if err != nil {
		return "", err
	}
	if len(chain) == 0 {
		return "", errors.Wrapf(store.ErrThreadNotFound, "canonical id %s", canonicalID)
	}
	return chain[len(chain)-1].ID, nil
}

// Invalidate drops the cache entry for a thread. Used after out-of-band
// writes such as compaction.
func (m *Manager) Invalidate(threadID string) {
	m.cacheMu.Lock()
	delete(m.cache, threadID)
	m.cacheMu.Unlock()
}
