package ledger

import (
	"context"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
	// KindTransfer rows exist in older data. They are never created and never
	// count towards balances.
	KindTransfer Kind = "transferencia"
)

type Scope string

const (
	ScopeIndividual Scope = "individual"
	ScopeShared     Scope = "shared"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type SpecialType string

const (
	SpecialSimple      SpecialType = "simple"
	SpecialInstallment SpecialType = "installment"
	SpecialRecurring   SpecialType = "recurring"
)

type Entry struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Title            string          `json:"title"`
	Amount           decimal.Decimal `json:"amount"`
	Kind             Kind            `json:"kind"`
	Scope            Scope           `json:"scope"`
	Status           Status          `json:"status"`
	Date             time.Time       `json:"date"`
	CategoryID       *uuid.UUID      `json:"category_id,omitempty"`
	SpecialType      SpecialType     `json:"special_type"`
	InstallmentCount int             `json:"installment_count,omitempty"` // installment rows only
	InstallmentIndex int             `json:"installment_index,omitempty"` // 1-based
	RecurringRuleID  *uuid.UUID      `json:"recurring_rule_id,omitempty"`
	CoupleID         *uuid.UUID      `json:"couple_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Patch is a partial edit made by the entry's owner. Nil fields are left alone.
type Patch struct {
	Title      *string          `json:"title,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Kind       *Kind            `json:"kind,omitempty"`
	Scope      *Scope           `json:"scope,omitempty"`
	Status     *Status          `json:"status,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
	CategoryID *uuid.UUID       `json:"category_id,omitempty"`
	// CoupleID links the entry when the edit moves it into the shared scope.
	CoupleID   *uuid.UUID       `json:"-"`
}

// Visibility selects the rows a caller may see. For the shared scope, rows of
// the owner not yet linked to a couple are always visible, and rows linked to
// CoupleID are visible when it is set.
type Visibility struct {
	OwnerID  uuid.UUID
	Scope    Scope
	CoupleID *uuid.UUID
}

type Filters struct {
	Visibility Visibility
	Kind       Kind
	Status     Status
	CategoryID *uuid.UUID
	Period     *calendar.Period // entries dated inside this month
	Through    *time.Time       // entries dated on or before this day
}

type Page struct {
	Rows  []Entry `json:"rows"`
	Total int     `json:"total"`
}

var (
	ErrEmptyTitle          = apperr.InvalidInput("title can't be empty")
	ErrInvalidAmount       = apperr.InvalidInput("amount must be positive")
	ErrInvalidKind         = apperr.InvalidInput("kind must be income or expense")
	ErrInvalidScope        = apperr.InvalidInput("scope must be individual or shared")
	ErrInvalidStatus       = apperr.InvalidInput("status must be pending, completed or cancelled")
	ErrMissingDate         = apperr.InvalidInput("date is required")
	ErrMissingPlan         = apperr.InvalidInput("special type is required")
	ErrInstallmentCount    = apperr.InvalidInput("installment count must be between %d and %d", MinInstallments, MaxInstallments)
	ErrInstallmentTooSmall = apperr.InvalidInput("installment amount would be below 0.01")
	ErrEntryNotFound       = apperr.NotFound("entry not found")
	ErrNotEntryOwner       = apperr.PermissionDenied("entry belongs to another owner")
	ErrGroupNotFound       = apperr.NotFound("no entries in group")
)

type Repository interface {
	Create(ctx context.Context, entry Entry) (uuid.UUID, error)
	// CreateBatch writes all entries or none.
	CreateBatch(ctx context.Context, entries []Entry) ([]uuid.UUID, error)
	// Get lists entries sorted by date descending. A pageSize of zero returns
	// every matching row.
	Get(ctx context.Context, filters Filters, page, pageSize int) (Page, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, patch Patch) (Entry, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	// DeleteByRule removes a recurring series together with its rule.
	DeleteByRule(ctx context.Context, ruleID, ownerID uuid.UUID) (int, error)
	DeleteByInstallmentGroup(ctx context.Context, titlePrefix string, installmentCount int, ownerID uuid.UUID) (int, error)
	CountByCouple(ctx context.Context, coupleID uuid.UUID) (int, error)
	CountByRule(ctx context.Context, ruleID uuid.UUID) (int, error)
	// LinkCouple sets coupleID on the owner's shared rows that have none.
	LinkCouple(ctx context.Context, ownerID, coupleID uuid.UUID) (int, error)
}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (s Scope) Valid() bool {
	return s == ScopeIndividual || s == ScopeShared
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// StatusFor derives the status of a newly created entry: future dates are
// pending, today and earlier are completed.
func StatusFor(date, today time.Time) Status {
	if calendar.IsFuture(date, today) {
		return StatusPending
	}
	return StatusCompleted
}

// Apply returns a copy of e with p applied, validating the edited fields.
func (e Entry) Apply(p Patch) (Entry, error) {
	if p.Title != nil {
		if *p.Title == "" {
			return Entry{}, ErrEmptyTitle
		}
		e.Title = *p.Title
	}
	if p.Amount != nil {
		amount := p.Amount.Round(2)
		if !amount.IsPositive() {
			return Entry{}, ErrInvalidAmount
		}
		e.Amount = amount
	}
	if p.Kind != nil {
		if !p.Kind.Valid() {
			return Entry{}, ErrInvalidKind
		}
		e.Kind = *p.Kind
	}
	if p.Scope != nil {
		if !p.Scope.Valid() {
			return Entry{}, ErrInvalidScope
		}
		if *p.Scope != e.Scope {
			e.CoupleID = nil
			if *p.Scope == ScopeShared && p.CoupleID != nil {
				id := *p.CoupleID
				e.CoupleID = &id
			}
		}
		e.Scope = *p.Scope
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return Entry{}, ErrInvalidStatus
		}
		e.Status = *p.Status
	}
	if p.Date != nil {
		if p.Date.IsZero() {
			return Entry{}, ErrMissingDate
		}
		e.Date = calendar.Date(*p.Date)
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		e.CategoryID = &id
	}
	e.UpdatedAt = time.Now().UTC()
	return e, nil
}

// Matches reports whether e passes f. Storage backends without a query
// language filter with it.
func (f Filters) Matches(e Entry) bool {
	if !f.Visibility.Allows(e) {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
		return false
	}
	if f.Period != nil && !f.Period.Contains(e.Date) {
		return false
	}
	if f.Through != nil && e.Date.After(calendar.Date(*f.Through)) {
		return false
	}
	return true
}

func (v Visibility) Allows(e Entry) bool {
	if e.Scope != v.Scope {
		return false
	}
	switch v.Scope {
	case ScopeIndividual:
		return e.OwnerID == v.OwnerID
	case ScopeShared:
		if e.CoupleID == nil {
			return e.OwnerID == v.OwnerID
		}
		return v.CoupleID != nil && *e.CoupleID == *v.CoupleID
	}
	return false
}
