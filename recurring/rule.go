package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/billbatista/casal-ledger/calendar"
	"github.com/google/uuid"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Horizon is how many occurrences are materialized when a rule is created.
const Horizon = 12

var ErrInvalidFrequency = errors.New("invalid frequency")

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Occurrence returns start plus i units of f, computed from start each time.
func (f Frequency) Occurrence(start time.Time, i int) time.Time {
	switch f {
	case Daily:
		return calendar.AddDays(start, i)
	case Weekly:
		return calendar.AddDays(start, 7*i)
	case Monthly:
		return calendar.AddMonths(start, i)
	case Yearly:
		return calendar.AddYears(start, i)
	}
	return calendar.Date(start)
}

type Rule struct {
	ID                uuid.UUID `json:"id"`
	OwnerID           uuid.UUID `json:"owner_id"`
	Frequency         Frequency `json:"frequency"`
	StartDate         time.Time `json:"start_date"`
	NextExecutionDate time.Time `json:"next_execution_date"`
	GeneratedCount    int       `json:"generated_count"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewRule builds an active rule whose eager horizon of occurrences covers one
// year from start.
func NewRule(ownerID uuid.UUID, frequency Frequency, start time.Time) (Rule, error) {
	if !frequency.Valid() {
		return Rule{}, ErrInvalidFrequency
	}
	start = calendar.Date(start)
	now := time.Now().UTC()
	return Rule{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Frequency:         frequency,
		StartDate:         start,
		NextExecutionDate: calendar.AddYears(start, 1),
		GeneratedCount:    Horizon,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Query selects rules for a sweep. A nil OwnerID means every owner.
type Query struct {
	OwnerID *uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, rule Rule) error
	ListActive(ctx context.Context, q Query) ([]Rule, error)
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}
