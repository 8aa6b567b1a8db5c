package couple

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/google/uuid"
)

// LinkedEntries counts ledger entries attached to a couple.
type LinkedEntries interface {
	CountByCouple(ctx context.Context, coupleID uuid.UUID) (int, error)
}

// Backfiller attaches an owner's unlinked shared entries to their active couple.
type Backfiller interface {
	Backfill(ctx context.Context, ownerID uuid.UUID, email string) error
}

type Service struct {
	couples  Repository
	entries  LinkedEntries
	backfill Backfiller
}

func NewService(couples Repository, entries LinkedEntries, backfill Backfiller) *Service {
	return &Service{couples: couples, entries: entries, backfill: backfill}
}

// RequestPair invites partnerEmail. Asking again for a pair that is already
// pending or active returns the existing couple; an inactive couple is reopened.
func (s *Service) RequestPair(ctx context.Context, me Partner, partnerEmail string) (*Couple, error) {
	myEmail := NormalizeEmail(me.Email)
	partnerEmail = NormalizeEmail(partnerEmail)
	if !ValidEmail(partnerEmail) {
		return nil, ErrInvalidEmail
	}
	if partnerEmail == myEmail {
		return nil, ErrSelfPairing
	}

	existing, err := s.couples.FindByPair(ctx, myEmail, partnerEmail)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if existing != nil && existing.Status != StatusInactive {
		return existing, nil
	}

	if err := s.checkAvailable(ctx, myEmail, partnerEmail); err != nil {
		return nil, err
	}

	if existing != nil {
		existing.reopen(myEmail)
		if err := s.couples.Update(ctx, *existing); err != nil {
			return nil, apperr.Store(err)
		}
		slog.Info("couple reopened", "couple_id", existing.ID, "requested_by", myEmail)
		return existing, nil
	}

	now := time.Now().UTC()
	c := Couple{
		ID:            uuid.New(),
		PartnerAEmail: myEmail,
		PartnerBEmail: partnerEmail,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.couples.Create(ctx, c)
	if errors.Is(err, ErrDuplicatePair) {
		// the other side invited us at the same time
		found, ferr := s.couples.FindByPair(ctx, myEmail, partnerEmail)
		if ferr != nil {
			return nil, apperr.Store(ferr)
		}
		if found != nil {
			return found, nil
		}
	}
	if err != nil {
		return nil, apperr.Store(err)
	}

	slog.Info("couple requested", "couple_id", c.ID, "requested_by", myEmail)
	return &c, nil
}

func (s *Service) checkAvailable(ctx context.Context, myEmail, partnerEmail string) error {
	mine, err := s.couples.FindOpenByEmail(ctx, myEmail)
	if err != nil {
		return apperr.Store(err)
	}
	if mine != nil && !mine.Involves(partnerEmail) {
		return ErrAlreadyPaired
	}
	theirs, err := s.couples.FindOpenByEmail(ctx, partnerEmail)
	if err != nil {
		return apperr.Store(err)
	}
	if theirs != nil && !theirs.Involves(myEmail) {
		return ErrPartnerUnavailable
	}
	return nil
}

// Accept marks the caller's side as accepted. The couple turns active once both
// sides have accepted, and the caller's unlinked shared entries are backfilled.
func (s *Service) Accept(ctx context.Context, me Partner) (*Couple, error) {
	email := NormalizeEmail(me.Email)
	c, err := s.couples.FindOpenByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if c == nil {
		return nil, ErrNoInvite
	}
	if c.Status == StatusActive {
		return c, nil
	}

	if c.PartnerAEmail == email {
		c.PartnerAAccepted = true
	} else {
		c.PartnerBAccepted = true
	}
	if c.bothAccepted() {
		c.Status = StatusActive
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.couples.Update(ctx, *c); err != nil {
		return nil, apperr.Store(err)
	}

	if c.Status == StatusActive {
		slog.Info("couple activated", "couple_id", c.ID)
		if s.backfill != nil {
			if err := s.backfill.Backfill(ctx, me.UserID, email); err != nil {
				slog.Warn("backfill after activation failed", "error", err, "couple_id", c.ID, "owner_id", me.UserID)
			}
		}
	}
	return c, nil
}

// Decline rejects a pending invite.
func (s *Service) Decline(ctx context.Context, me Partner) (*Couple, error) {
	return s.closePending(ctx, me, "declined")
}

// Cancel withdraws a pending invite.
func (s *Service) Cancel(ctx context.Context, me Partner) (*Couple, error) {
	return s.closePending(ctx, me, "cancelled")
}

func (s *Service) closePending(ctx context.Context, me Partner, action string) (*Couple, error) {
	email := NormalizeEmail(me.Email)
	c, err := s.couples.FindOpenByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if c == nil || c.Status != StatusPending {
		return nil, ErrNoInvite
	}

	c.reset(StatusInactive)
	if err := s.couples.Update(ctx, *c); err != nil {
		return nil, apperr.Store(err)
	}
	slog.Info("couple invite "+action, "couple_id", c.ID, "by", email)
	return c, nil
}

// Unlink deactivates the caller's active couple. It fails while any ledger
// entry still references the couple.
func (s *Service) Unlink(ctx context.Context, me Partner) (*Couple, error) {
	email := NormalizeEmail(me.Email)
	c, err := s.couples.FindOpenByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if c == nil || c.Status != StatusActive {
		return nil, ErrNoActiveCouple
	}

	linked, err := s.entries.CountByCouple(ctx, c.ID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if linked > 0 {
		return nil, apperr.New(apperr.KindUnlinkBlocked, "couple has %d linked entries", linked)
	}

	c.reset(StatusInactive)
	if err := s.couples.Update(ctx, *c); err != nil {
		return nil, apperr.Store(err)
	}
	slog.Info("couple unlinked", "couple_id", c.ID, "by", email)
	return c, nil
}

// Current returns the caller's pending or active couple, if any, and how the
// caller sees it.
func (s *Service) Current(ctx context.Context, email string) (*Couple, State, error) {
	email = NormalizeEmail(email)
	c, err := s.couples.FindOpenByEmail(ctx, email)
	if err != nil {
		return nil, StateUnpaired, apperr.Store(err)
	}
	return c, StateFor(c, email), nil
}

func (s *Service) SetSharedBudget(ctx context.Context, me Partner, enabled bool) (*Couple, error) {
	email := NormalizeEmail(me.Email)
	c, err := s.couples.FindOpenByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if c == nil || c.Status != StatusActive {
		return nil, ErrNoActiveCouple
	}

	c.SharedBudgetEnabled = enabled
	c.UpdatedAt = time.Now().UTC()
	if err := s.couples.Update(ctx, *c); err != nil {
		return nil, apperr.Store(err)
	}
	return c, nil
}
