package view

import (
	"testing"
	"time"

	"github.com/billbatista/casal-ledger/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(10 * time.Second)
	c.now = clock.now

	owner := uuid.New()
	coupleID := uuid.New()
	c.SetCoupleID(owner, &coupleID)
	c.MarkBackfilled(owner)
	c.SetSnapshot(owner, ledger.ScopeShared, []ledger.Entry{{Title: "Mercado"}})

	id, ok := c.CoupleID(owner)
	require.True(t, ok)
	require.Equal(t, coupleID, *id)
	require.True(t, c.Backfilled(owner))
	rows, ok := c.Snapshot(owner, ledger.ScopeShared)
	require.True(t, ok)
	require.Len(t, rows, 1)

	clock.t = clock.t.Add(10 * time.Second)
	_, ok = c.CoupleID(owner)
	require.False(t, ok)
	require.False(t, c.Backfilled(owner))
	_, ok = c.Snapshot(owner, ledger.ScopeShared)
	require.False(t, ok)
}

func TestCacheRemembersNoCouple(t *testing.T) {
	c := NewCache(0)
	owner := uuid.New()
	c.SetCoupleID(owner, nil)

	id, ok := c.CoupleID(owner)
	require.True(t, ok)
	require.Nil(t, id)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	ana, bruno := uuid.New(), uuid.New()
	for _, owner := range []uuid.UUID{ana, bruno} {
		c.SetCoupleID(owner, nil)
		c.MarkBackfilled(owner)
		c.SetSnapshot(owner, ledger.ScopeIndividual, nil)
		c.SetSnapshot(owner, ledger.ScopeShared, nil)
	}

	c.Invalidate(ana)
	_, ok := c.CoupleID(ana)
	require.False(t, ok)
	require.False(t, c.Backfilled(ana))
	_, ok = c.Snapshot(ana, ledger.ScopeIndividual)
	require.False(t, ok)

	_, ok = c.CoupleID(bruno)
	require.True(t, ok)
	_, ok = c.Snapshot(bruno, ledger.ScopeShared)
	require.True(t, ok)

	c.DropSnapshots(bruno)
	_, ok = c.Snapshot(bruno, ledger.ScopeShared)
	require.False(t, ok)
	require.True(t, c.Backfilled(bruno))
}

func TestCachesPerSession(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	cs := NewCaches(time.Minute, time.Hour)
	cs.now = clock.now

	s1, s2 := uuid.New(), uuid.New()
	a := cs.For(s1)
	require.Same(t, a, cs.For(s1))
	require.NotSame(t, a, cs.For(s2))

	clock.t = clock.t.Add(2 * time.Hour)
	require.NotSame(t, a, cs.For(s1))

	b := cs.For(s2)
	cs.Forget(s2)
	require.NotSame(t, b, cs.For(s2))
}
