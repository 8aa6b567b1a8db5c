package ledger

import (
	"time"

	"github.com/billbatista/casal-ledger/recurring"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinInstallments = 2
	MaxInstallments = 60
)

// Plan is how one intent turns into ledger rows. It is one of Simple,
// Installments or Recurrence.
type Plan interface {
	specialType() SpecialType
}

type Simple struct{}

type Installments struct {
	Count int
}

type Recurrence struct {
	Frequency recurring.Frequency
}

func (Simple) specialType() SpecialType       { return SpecialSimple }
func (Installments) specialType() SpecialType { return SpecialInstallment }
func (Recurrence) specialType() SpecialType   { return SpecialRecurring }

// Intent is what the user submitted from the entry form.
type Intent struct {
	Title      string
	Amount     decimal.Decimal
	Kind       Kind
	Scope      Scope
	CategoryID *uuid.UUID
	Date       time.Time
	Plan       Plan
	// CoupleID is the owner's active couple. Shared rows are written linked
	// to it; individual rows ignore it.
	CoupleID   *uuid.UUID
}

func (in Intent) validate() error {
	if in.Title == "" {
		return ErrEmptyTitle
	}
	if !in.Amount.Round(2).IsPositive() {
		return ErrInvalidAmount
	}
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	if !in.Scope.Valid() {
		return ErrInvalidScope
	}
	if in.Date.IsZero() {
		return ErrMissingDate
	}
	if in.Plan == nil {
		return ErrMissingPlan
	}
	return nil
}
