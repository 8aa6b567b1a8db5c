package view

import (
	"sync"
	"time"

	"github.com/billbatista/casal-ledger/ledger"
	"github.com/google/uuid"
)

const DefaultTTL = 30 * time.Second

type item[T any] struct {
	value   T
	expires time.Time
}

type snapshotKey struct {
	owner uuid.UUID
	scope ledger.Scope
}

// Cache holds short-lived read state for one session: the caller's active
// couple, whether their shared rows were already backfilled, and snapshots of
// visible entries used by balance reads. Any mutation by an owner must be
// followed by Invalidate for that owner.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	couples    map[uuid.UUID]item[*uuid.UUID]
	backfilled map[uuid.UUID]item[struct{}]
	snapshots  map[snapshotKey]item[[]ledger.Entry]
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:        ttl,
		now:        time.Now,
		couples:    make(map[uuid.UUID]item[*uuid.UUID]),
		backfilled: make(map[uuid.UUID]item[struct{}]),
		snapshots:  make(map[snapshotKey]item[[]ledger.Entry]),
	}
}

// CoupleID returns the cached active couple of owner. A nil id with ok=true
// means the owner is known to have no active couple.
func (c *Cache) CoupleID(owner uuid.UUID) (*uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.couples[owner]
	if !ok || c.expired(it.expires) {
		delete(c.couples, owner)
		return nil, false
	}
	return it.value, true
}

func (c *Cache) SetCoupleID(owner uuid.UUID, id *uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.couples[owner] = item[*uuid.UUID]{value: id, expires: c.deadline()}
}

func (c *Cache) Backfilled(owner uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.backfilled[owner]
	if !ok || c.expired(it.expires) {
		delete(c.backfilled, owner)
		return false
	}
	return true
}

func (c *Cache) MarkBackfilled(owner uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backfilled[owner] = item[struct{}]{expires: c.deadline()}
}

func (c *Cache) Snapshot(owner uuid.UUID, scope ledger.Scope) ([]ledger.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := snapshotKey{owner: owner, scope: scope}
	it, ok := c.snapshots[key]
	if !ok || c.expired(it.expires) {
		delete(c.snapshots, key)
		return nil, false
	}
	return it.value, true
}

func (c *Cache) SetSnapshot(owner uuid.UUID, scope ledger.Scope, entries []ledger.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshotKey{owner: owner, scope: scope}] = item[[]ledger.Entry]{value: entries, expires: c.deadline()}
}

// Invalidate drops everything cached for owner.
func (c *Cache) Invalidate(owner uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.couples, owner)
	delete(c.backfilled, owner)
	c.dropSnapshots(owner)
}

func (c *Cache) DropSnapshots(owner uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropSnapshots(owner)
}

func (c *Cache) dropSnapshots(owner uuid.UUID) {
	for key := range c.snapshots {
		if key.owner == owner {
			delete(c.snapshots, key)
		}
	}
}

func (c *Cache) deadline() time.Time {
	return c.now().Add(c.ttl)
}

func (c *Cache) expired(deadline time.Time) bool {
	return !c.now().Before(deadline)
}

// Caches hands out one Cache per session and forgets sessions idle for longer
// than idle.
type Caches struct {
	mu       sync.Mutex
	ttl      time.Duration
	idle     time.Duration
	now      func() time.Time
	sessions map[uuid.UUID]*sessionCache
}

type sessionCache struct {
	cache    *Cache
	lastUsed time.Time
}

func NewCaches(ttl, idle time.Duration) *Caches {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Caches{
		ttl:      ttl,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*sessionCache),
	}
}

func (cs *Caches) For(sessionID uuid.UUID) *Cache {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	for id, sc := range cs.sessions {
		if now.Sub(sc.lastUsed) > cs.idle {
			delete(cs.sessions, id)
		}
	}

	sc, ok := cs.sessions[sessionID]
	if !ok {
		sc = &sessionCache{cache: NewCache(cs.ttl)}
		cs.sessions[sessionID] = sc
	}
	sc.lastUsed = now
	return sc.cache
}

// Forget drops the cache of a session, e.g. on logout.
func (cs *Caches) Forget(sessionID uuid.UUID) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.sessions, sessionID)
}
