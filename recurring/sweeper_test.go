package recurring_test

import (
	"context"
	"testing"
	"time"

	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/memstore"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedRule(t *testing.T, store *memstore.Store, owner uuid.UUID, start time.Time, withEntry bool) recurring.Rule {
	t.Helper()
	ctx := context.Background()

	rule, err := recurring.NewRule(owner, recurring.Monthly, start)
	require.NoError(t, err)
	rule.CreatedAt = start
	require.NoError(t, store.Rules().Create(ctx, rule))

	if withEntry {
		ruleID := rule.ID
		_, err := store.Entries().Create(ctx, ledger.Entry{
			ID:              uuid.New(),
			OwnerID:         owner,
			Scope:           ledger.ScopeIndividual,
			Kind:            ledger.KindExpense,
			Date:            start,
			RecurringRuleID: &ruleID,
		})
		require.NoError(t, err)
	}
	return rule
}

func TestProcessRetiresExpiredRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	owner := uuid.New()
	now := day(2026, time.June, 1)

	expired := seedRule(t, store, owner, day(2025, time.January, 10), true) // next execution 2026-01-10
	current := seedRule(t, store, owner, day(2026, time.February, 1), true)
	edge := seedRule(t, store, owner, day(2025, time.June, 1), true) // next execution is today

	sweeper := recurring.NewSweeper(store.Rules(), store.Entries(), recurring.WithClock(func() time.Time { return now }))
	res, err := sweeper.Process(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Empty(t, res.Errors)

	got, _ := store.Rules().Get(expired.ID)
	require.False(t, got.IsActive)
	got, _ = store.Rules().Get(current.ID)
	require.True(t, got.IsActive)
	got, _ = store.Rules().Get(edge.ID)
	require.True(t, got.IsActive)

	again, err := sweeper.Process(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, again.Processed)
}

func TestProcessScopedToOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	me, other := uuid.New(), uuid.New()
	now := day(2026, time.June, 1)

	mine := seedRule(t, store, me, day(2024, time.March, 3), true)
	theirs := seedRule(t, store, other, day(2024, time.March, 3), true)

	sweeper := recurring.NewSweeper(store.Rules(), store.Entries(), recurring.WithClock(func() time.Time { return now }))
	res, err := sweeper.Process(ctx, &me)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	got, _ := store.Rules().Get(mine.ID)
	require.False(t, got.IsActive)
	got, _ = store.Rules().Get(theirs.ID)
	require.True(t, got.IsActive)
}

func TestProcessRetiresOrphans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	owner := uuid.New()
	created := day(2026, time.May, 20)

	orphan := seedRule(t, store, owner, created, false)

	fresh := func(now time.Time) *recurring.Sweeper {
		return recurring.NewSweeper(store.Rules(), store.Entries(),
			recurring.WithClock(func() time.Time { return now }),
			recurring.WithOrphanGrace(time.Hour))
	}

	res, err := fresh(created.Add(30 * time.Minute)).Process(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, res.Processed, "inside grace period")

	res, err = fresh(created.Add(2 * time.Hour)).Process(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)

	got, _ := store.Rules().Get(orphan.ID)
	require.False(t, got.IsActive)
}

func TestFrequencyOccurrence(t *testing.T) {
	t.Parallel()
	start := day(2024, time.February, 29)

	require.Equal(t, day(2024, time.March, 10), recurring.Daily.Occurrence(start, 10))
	require.Equal(t, day(2024, time.March, 14), recurring.Weekly.Occurrence(start, 2))
	require.Equal(t, day(2024, time.April, 29), recurring.Monthly.Occurrence(start, 2))
	require.Equal(t, day(2025, time.February, 28), recurring.Yearly.Occurrence(start, 1))

	_, err := recurring.ParseFrequency("hourly")
	require.ErrorIs(t, err, recurring.ErrInvalidFrequency)
}
