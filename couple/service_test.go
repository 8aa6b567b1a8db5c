package couple_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingBackfiller struct {
	calls []uuid.UUID
	err   error
}

func (b *recordingBackfiller) Backfill(_ context.Context, ownerID uuid.UUID, _ string) error {
	b.calls = append(b.calls, ownerID)
	return b.err
}

type fixture struct {
	store    *memstore.Store
	svc      *couple.Service
	backfill *recordingBackfiller
	ana      couple.Partner
	bruno    couple.Partner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	bf := &recordingBackfiller{}
	return &fixture{
		store:    store,
		svc:      couple.NewService(store.Couples(), store.Entries(), bf),
		backfill: bf,
		ana:      couple.Partner{UserID: uuid.New(), Email: "ana@example.com"},
		bruno:    couple.Partner{UserID: uuid.New(), Email: "bruno@example.com"},
	}
}

func TestRequestPairValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "Bruno <bruno@example.com>"} {
		_, err := f.svc.RequestPair(ctx, f.ana, email)
		require.ErrorIs(t, err, couple.ErrInvalidEmail, email)
	}

	_, err := f.svc.RequestPair(ctx, f.ana, " ANA@example.com ")
	require.ErrorIs(t, err, couple.ErrSelfPairing)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	require.Zero(t, f.store.Couples().Count())
}

func TestRequestPairBothDirectionsIsOneCouple(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	require.Equal(t, couple.StatusPending, first.Status)
	require.Equal(t, "ana@example.com", first.PartnerAEmail)
	require.False(t, first.PartnerAAccepted)
	require.False(t, first.PartnerBAccepted)

	second, err := f.svc.RequestPair(ctx, f.bruno, f.ana.Email)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, f.store.Couples().Count())

	_, state, err := f.svc.Current(ctx, f.ana.Email)
	require.NoError(t, err)
	require.Equal(t, couple.StatePendingSentByMe, state)
	_, state, err = f.svc.Current(ctx, f.bruno.Email)
	require.NoError(t, err)
	require.Equal(t, couple.StatePendingReceivedByMe, state)
}

func TestAcceptNeedsBothSides(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)

	c, err := f.svc.Accept(ctx, f.bruno)
	require.NoError(t, err)
	require.Equal(t, couple.StatusPending, c.Status)
	require.True(t, c.PartnerBAccepted)
	require.False(t, c.PartnerAAccepted)
	require.Empty(t, f.backfill.calls)

	c, err = f.svc.Accept(ctx, f.ana)
	require.NoError(t, err)
	require.Equal(t, couple.StatusActive, c.Status)
	require.Equal(t, []uuid.UUID{f.ana.UserID}, f.backfill.calls)

	_, state, err := f.svc.Current(ctx, f.bruno.Email)
	require.NoError(t, err)
	require.Equal(t, couple.StateActive, state)

	again, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	require.Equal(t, couple.StatusActive, again.Status)
}

func TestAcceptIgnoresBackfillFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.backfill.err = errors.New("store unavailable")

	_, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.ana)
	require.NoError(t, err)
	c, err := f.svc.Accept(ctx, f.bruno)
	require.NoError(t, err)
	require.Equal(t, couple.StatusActive, c.Status)
}

func TestAcceptWithoutInvite(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Accept(context.Background(), f.ana)
	require.ErrorIs(t, err, couple.ErrNoInvite)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeclineAndReopen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.bruno)
	require.NoError(t, err)

	declined, err := f.svc.Decline(ctx, f.bruno)
	require.NoError(t, err)
	require.Equal(t, couple.StatusInactive, declined.Status)
	require.False(t, declined.PartnerBAccepted)

	_, err = f.svc.Cancel(ctx, f.ana)
	require.ErrorIs(t, err, couple.ErrNoInvite)

	reopened, err := f.svc.RequestPair(ctx, f.bruno, f.ana.Email)
	require.NoError(t, err)
	require.Equal(t, created.ID, reopened.ID)
	require.Equal(t, couple.StatusPending, reopened.Status)
	require.False(t, reopened.PartnerAAccepted)
	require.False(t, reopened.PartnerBAccepted)
	require.Equal(t, 1, f.store.Couples().Count())

	stored, err := f.store.Couples().FindOpenByEmail(ctx, f.ana.Email)
	require.NoError(t, err)
	require.Equal(t, f.bruno.Email, stored.PartnerAEmail)
	require.Equal(t, f.ana.Email, stored.PartnerBEmail)
	require.Equal(t, couple.StatePendingSentByMe, couple.StateFor(stored, f.bruno.Email))
	require.Equal(t, couple.StatePendingReceivedByMe, couple.StateFor(stored, f.ana.Email))

	cancelled, err := f.svc.Cancel(ctx, f.ana)
	require.NoError(t, err)
	require.Equal(t, couple.StatusInactive, cancelled.Status)
}

func TestReopenBySameSideKeepsInviter(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.ana)
	require.NoError(t, err)

	reopened, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	require.Equal(t, f.ana.Email, reopened.PartnerAEmail)
	require.Equal(t, couple.StatePendingSentByMe, couple.StateFor(reopened, f.ana.Email))
	require.Equal(t, couple.StatePendingReceivedByMe, couple.StateFor(reopened, f.bruno.Email))
}

func TestRequestPairWhileTaken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	carla := couple.Partner{UserID: uuid.New(), Email: "carla@example.com"}

	_, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)

	_, err = f.svc.RequestPair(ctx, f.ana, carla.Email)
	require.ErrorIs(t, err, couple.ErrAlreadyPaired)
	_, err = f.svc.RequestPair(ctx, carla, f.bruno.Email)
	require.ErrorIs(t, err, couple.ErrPartnerUnavailable)
}

func activate(t *testing.T, f *fixture) *couple.Couple {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RequestPair(ctx, f.ana, f.bruno.Email)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.ana)
	require.NoError(t, err)
	c, err := f.svc.Accept(ctx, f.bruno)
	require.NoError(t, err)
	require.Equal(t, couple.StatusActive, c.Status)
	return c
}

func TestUnlinkBlockedByLinkedEntries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	c := activate(t, f)

	cid := c.ID
	entryID, err := f.store.Entries().Create(ctx, ledger.Entry{
		ID:       uuid.New(),
		OwnerID:  f.ana.UserID,
		Title:    "Aluguel",
		Amount:   decimal.NewFromInt(2000),
		Kind:     ledger.KindExpense,
		Scope:    ledger.ScopeShared,
		Status:   ledger.StatusCompleted,
		Date:     time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		CoupleID: &cid,
	})
	require.NoError(t, err)

	_, err = f.svc.Unlink(ctx, f.bruno)
	require.ErrorIs(t, err, couple.ErrUnlinkBlocked)
	require.Equal(t, apperr.KindUnlinkBlocked, apperr.KindOf(err))

	require.NoError(t, f.store.Entries().Delete(ctx, entryID, f.ana.UserID))

	unlinked, err := f.svc.Unlink(ctx, f.bruno)
	require.NoError(t, err)
	require.Equal(t, couple.StatusInactive, unlinked.Status)
	require.False(t, unlinked.PartnerAAccepted)
	require.False(t, unlinked.PartnerBAccepted)

	_, err = f.svc.Unlink(ctx, f.ana)
	require.ErrorIs(t, err, couple.ErrNoActiveCouple)
}

func TestSharedBudgetToggle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetSharedBudget(ctx, f.ana, true)
	require.ErrorIs(t, err, couple.ErrNoActiveCouple)

	activate(t, f)
	c, err := f.svc.SetSharedBudget(ctx, f.ana, true)
	require.NoError(t, err)
	require.True(t, c.SharedBudgetEnabled)
}

func TestStateFor(t *testing.T) {
	t.Parallel()
	c := &couple.Couple{PartnerAEmail: "a@x.com", PartnerBEmail: "b@x.com", Status: couple.StatusPending}

	require.Equal(t, couple.StateUnpaired, couple.StateFor(nil, "a@x.com"))
	require.Equal(t, couple.StateUnpaired, couple.StateFor(c, "z@x.com"))
	require.Equal(t, couple.StatePendingSentByMe, couple.StateFor(c, "a@x.com"))
	require.Equal(t, couple.StatePendingReceivedByMe, couple.StateFor(c, "b@x.com"))
	c.Status = couple.StatusInactive
	require.Equal(t, couple.StateInactive, couple.StateFor(c, "b@x.com"))
}
