// Package couple owns the lifecycle of the link between two accounts and the
// mutual-acceptance protocol that activates it.
package couple

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// State is the pairing status as seen by one of the partners.
type State string

const (
	StateUnpaired            State = "unpaired"
	StatePendingSentByMe     State = "pending_sent_by_me"
	StatePendingReceivedByMe State = "pending_received_by_me"
	StateActive              State = "active"
	StateInactive            State = "inactive"
)

type Couple struct {
	ID                  uuid.UUID `json:"id"`
	PartnerAEmail       string    `json:"partner_a_email"`
	PartnerBEmail       string    `json:"partner_b_email"`
	Status              Status    `json:"status"`
	PartnerAAccepted    bool      `json:"partner_a_accepted"`
	PartnerBAccepted    bool      `json:"partner_b_accepted"`
	SharedBudgetEnabled bool      `json:"shared_budget_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Partner is the caller acting on a couple.
type Partner struct {
	UserID uuid.UUID
	Email  string
}

var (
	ErrInvalidEmail       = apperr.InvalidInput("invalid partner email")
	ErrSelfPairing        = apperr.InvalidInput("can't pair with yourself")
	ErrAlreadyPaired      = apperr.InvalidInput("you already have a couple with someone else")
	ErrPartnerUnavailable = apperr.InvalidInput("partner already has a couple with someone else")
	ErrNoInvite           = apperr.NotFound("no pending invite")
	ErrNoActiveCouple     = apperr.NotFound("no active couple")
	ErrUnlinkBlocked      = apperr.ErrUnlinkBlocked

	// ErrDuplicatePair is returned by repositories when the unordered pair
	// already has a row.
	ErrDuplicatePair = errors.New("couple already exists for pair")
)

type Repository interface {
	// FindByPair returns the couple for the unordered pair, or nil.
	FindByPair(ctx context.Context, emailA, emailB string) (*Couple, error)
	// FindOpenByEmail returns the pending or active couple involving email, or nil.
	FindOpenByEmail(ctx context.Context, email string) (*Couple, error)
	Create(ctx context.Context, c Couple) error
	Update(ctx context.Context, c Couple) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && addr.Name == ""
}

// Involves reports whether email is one of the partners.
func (c *Couple) Involves(email string) bool {
	return c.PartnerAEmail == email || c.PartnerBEmail == email
}

// PartnerOf returns the other partner's email.
func (c *Couple) PartnerOf(email string) string {
	if c.PartnerAEmail == email {
		return c.PartnerBEmail
	}
	return c.PartnerAEmail
}

func (c *Couple) bothAccepted() bool {
	return c.PartnerAAccepted && c.PartnerBAccepted
}

func (c *Couple) reset(status Status) {
	c.Status = status
	c.PartnerAAccepted = false
	c.PartnerBAccepted = false
	c.UpdatedAt = time.Now().UTC()
}

// reopen turns an inactive couple back into a pending invite sent by email.
func (c *Couple) reopen(email string) {
	if c.PartnerAEmail != email {
		c.PartnerAEmail, c.PartnerBEmail = email, c.PartnerAEmail
	}
	c.reset(StatusPending)
}

// StateFor derives what email sees for c. A nil couple is unpaired.
func StateFor(c *Couple, email string) State {
	if c == nil || !c.Involves(email) {
		return StateUnpaired
	}
	switch c.Status {
	case StatusActive:
		return StateActive
	case StatusPending:
		if c.PartnerAEmail == email {
			return StatePendingSentByMe
		}
		return StatePendingReceivedByMe
	}
	return StateInactive
}
