package view_test

import (
	"context"
	"testing"
	"time"

	"github.com/billbatista/casal-ledger/balance"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/memstore"
	"github.com/billbatista/casal-ledger/view"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC)

type member struct {
	partner couple.Partner
	cache   *view.Cache
	rec     *view.Reconciler
	pairing *couple.Service
}

func newMember(store *memstore.Store, email string) *member {
	m := &member{
		partner: couple.Partner{UserID: uuid.New(), Email: email},
		cache:   view.NewCache(time.Minute),
	}
	m.rec = view.New(store.Entries(), store.Couples(), m.cache)
	m.pairing = couple.NewService(store.Couples(), store.Entries(), m.rec)
	return m
}

func (m *member) add(t *testing.T, store *memstore.Store, title string, kind ledger.Kind, scope ledger.Scope, amount string, date time.Time) {
	t.Helper()
	x := ledger.NewExpander(store.Entries(), store.Rules(), func() time.Time { return now })
	_, err := x.Expand(context.Background(), m.partner.UserID, ledger.Intent{
		Title:  title,
		Amount: decimal.RequireFromString(amount),
		Kind:   kind,
		Scope:  scope,
		Date:   date,
		Plan:   ledger.Simple{},
	})
	require.NoError(t, err)
	m.rec.Invalidate(m.partner.UserID)
}

func (m *member) list(t *testing.T, scope ledger.Scope) []ledger.Entry {
	t.Helper()
	page, err := m.rec.List(context.Background(), view.Query{
		OwnerID: m.partner.UserID,
		Email:   m.partner.Email,
		Scope:   scope,
	})
	require.NoError(t, err)
	require.Equal(t, len(page.Rows), page.Total)
	return page.Rows
}

func titles(entries []ledger.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScopesBeforeAndAfterPairing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ana := newMember(store, "ana@example.com")
	bruno := newMember(store, "bruno@example.com")

	ana.add(t, store, "Salario Ana", ledger.KindIncome, ledger.ScopeIndividual, "5000", day(time.January, 5))
	ana.add(t, store, "Mercado", ledger.KindExpense, ledger.ScopeShared, "300", day(time.January, 10))
	bruno.add(t, store, "Academia", ledger.KindExpense, ledger.ScopeIndividual, "120", day(time.January, 11))
	bruno.add(t, store, "Aluguel", ledger.KindExpense, ledger.ScopeShared, "2000", day(time.February, 1))

	require.Equal(t, []string{"Salario Ana"}, titles(ana.list(t, ledger.ScopeIndividual)))
	require.Equal(t, []string{"Mercado"}, titles(ana.list(t, ledger.ScopeShared)))
	require.Equal(t, []string{"Aluguel"}, titles(bruno.list(t, ledger.ScopeShared)))

	_, err := ana.pairing.RequestPair(ctx, ana.partner, bruno.partner.Email)
	require.NoError(t, err)
	_, err = bruno.pairing.Accept(ctx, bruno.partner)
	require.NoError(t, err)
	ana.rec.Invalidate(ana.partner.UserID)
	c, err := ana.pairing.Accept(ctx, ana.partner)
	require.NoError(t, err)
	require.Equal(t, couple.StatusActive, c.Status)

	// ana's rows were linked on activation
	linked, err := store.Entries().CountByCouple(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, linked)

	// bruno's rows are linked on the first shared read
	bruno.rec.Invalidate(bruno.partner.UserID)
	require.Equal(t, []string{"Aluguel", "Mercado"}, titles(bruno.list(t, ledger.ScopeShared)))
	require.Equal(t, []string{"Aluguel", "Mercado"}, titles(ana.list(t, ledger.ScopeShared)))

	// individual rows never cross over
	require.Equal(t, []string{"Salario Ana"}, titles(ana.list(t, ledger.ScopeIndividual)))
	require.Equal(t, []string{"Academia"}, titles(bruno.list(t, ledger.ScopeIndividual)))
	for _, e := range bruno.list(t, ledger.ScopeShared) {
		require.Equal(t, ledger.ScopeShared, e.Scope)
		require.NotNil(t, e.CoupleID)
	}
}

func TestBackfillIsMemoized(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ana := newMember(store, "ana@example.com")
	bruno := newMember(store, "bruno@example.com")

	_, err := ana.pairing.RequestPair(ctx, ana.partner, bruno.partner.Email)
	require.NoError(t, err)
	_, err = ana.pairing.Accept(ctx, ana.partner)
	require.NoError(t, err)
	_, err = bruno.pairing.Accept(ctx, bruno.partner)
	require.NoError(t, err)

	require.NoError(t, ana.rec.Backfill(ctx, ana.partner.UserID, ana.partner.Email))

	// a shared row written after the backfill stays unlinked until the cache is dropped
	x := ledger.NewExpander(store.Entries(), store.Rules(), func() time.Time { return now })
	_, err = x.Expand(ctx, ana.partner.UserID, ledger.Intent{
		Title: "Farmacia", Amount: decimal.NewFromInt(45), Kind: ledger.KindExpense,
		Scope: ledger.ScopeShared, Date: day(time.March, 2), Plan: ledger.Simple{},
	})
	require.NoError(t, err)
	require.NoError(t, ana.rec.Backfill(ctx, ana.partner.UserID, ana.partner.Email))

	require.Equal(t, []string{"Farmacia"}, titles(ana.list(t, ledger.ScopeShared)))
	require.Empty(t, bruno.list(t, ledger.ScopeShared))

	ana.rec.Invalidate(ana.partner.UserID)
	require.Equal(t, []string{"Farmacia"}, titles(ana.list(t, ledger.ScopeShared)))
	require.Equal(t, []string{"Farmacia"}, titles(bruno.list(t, ledger.ScopeShared)))
}

func TestVisibleSnapshotNeedsInvalidation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ana := newMember(store, "ana@example.com")
	feb := calendar.Period{Year: 2026, Month: time.February}

	ana.add(t, store, "Salario", ledger.KindIncome, ledger.ScopeIndividual, "1000", day(time.January, 5))
	rows, err := ana.rec.Visible(ctx, ana.partner.UserID, ana.partner.Email, ledger.ScopeIndividual)
	require.NoError(t, err)
	require.True(t, balance.Compute(rows, feb).Available.Equal(decimal.NewFromInt(1000)))

	x := ledger.NewExpander(store.Entries(), store.Rules(), func() time.Time { return now })
	_, err = x.Expand(ctx, ana.partner.UserID, ledger.Intent{
		Title: "Conta de luz", Amount: decimal.NewFromInt(200), Kind: ledger.KindExpense,
		Scope: ledger.ScopeIndividual, Date: day(time.February, 10), Plan: ledger.Simple{},
	})
	require.NoError(t, err)

	stale, err := ana.rec.Visible(ctx, ana.partner.UserID, ana.partner.Email, ledger.ScopeIndividual)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	ana.rec.Invalidate(ana.partner.UserID)
	fresh, err := ana.rec.Visible(ctx, ana.partner.UserID, ana.partner.Email, ledger.ScopeIndividual)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	require.True(t, balance.Compute(fresh, feb).Available.Equal(decimal.NewFromInt(800)))
}

func TestListRejectsUnknownScope(t *testing.T) {
	store := memstore.New()
	ana := newMember(store, "ana@example.com")

	_, err := ana.rec.List(context.Background(), view.Query{OwnerID: ana.partner.UserID, Email: ana.partner.Email, Scope: "public"})
	require.ErrorIs(t, err, ledger.ErrInvalidScope)
}

func TestListPagination(t *testing.T) {
	store := memstore.New()
	ana := newMember(store, "ana@example.com")
	for d := 1; d <= 5; d++ {
		ana.add(t, store, "Cafe", ledger.KindExpense, ledger.ScopeIndividual, "8", day(time.January, d))
	}

	page, err := ana.rec.List(context.Background(), view.Query{
		OwnerID: ana.partner.UserID, Email: ana.partner.Email, Scope: ledger.ScopeIndividual, Page: 2, PageSize: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Len(t, page.Rows, 2)
	require.Equal(t, day(time.January, 3), page.Rows[0].Date)
	require.Equal(t, day(time.January, 2), page.Rows[1].Date)
}

func TestActiveCoupleFollowsPairing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ana := newMember(store, "ana@example.com")
	bruno := newMember(store, "bruno@example.com")

	id, err := ana.rec.ActiveCouple(ctx, ana.partner.UserID, ana.partner.Email)
	require.NoError(t, err)
	require.Nil(t, id)

	_, err = ana.pairing.RequestPair(ctx, ana.partner, bruno.partner.Email)
	require.NoError(t, err)
	_, err = ana.pairing.Accept(ctx, ana.partner)
	require.NoError(t, err)
	c, err := bruno.pairing.Accept(ctx, bruno.partner)
	require.NoError(t, err)

	ana.rec.Invalidate(ana.partner.UserID)
	id, err = ana.rec.ActiveCouple(ctx, ana.partner.UserID, ana.partner.Email)
	require.NoError(t, err)
	require.NotNil(t, id)
	require.Equal(t, c.ID, *id)
}
