package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Expander turns a submitted intent into ledger rows and writes them.
type Expander struct {
	entries Repository
	rules   recurring.Repository
	now     func() time.Time
}

func NewExpander(entries Repository, rules recurring.Repository, now func() time.Time) *Expander {
	if now == nil {
		now = time.Now
	}
	return &Expander{entries: entries, rules: rules, now: now}
}

// Expand writes the rows for in and returns them. Installment and recurring rows
// go in a single batch. A recurring rule is created before its batch; if the
// batch fails the rule stays behind without entries and is retired by the
// sweeper.
func (x *Expander) Expand(ctx context.Context, ownerID uuid.UUID, in Intent) ([]Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.Amount = in.Amount.Round(2)
	in.Date = calendar.Date(in.Date)
	today := calendar.Date(x.now())

	switch p := in.Plan.(type) {
	case Simple:
		entry := newEntry(ownerID, in, in.Title, in.Amount, in.Date, today)
		id, err := x.entries.Create(ctx, entry)
		if err != nil {
			return nil, apperr.Store(err)
		}
		entry.ID = id
		return []Entry{entry}, nil

	case Installments:
		entries, err := installmentEntries(ownerID, in, p.Count, today)
		if err != nil {
			return nil, err
		}
		return x.writeBatch(ctx, entries)

	case Recurrence:
		rule, err := recurring.NewRule(ownerID, p.Frequency, in.Date)
		if err != nil {
			return nil, apperr.InvalidInput("%v", err)
		}
		if err := x.rules.Create(ctx, rule); err != nil {
			return nil, apperr.Store(err)
		}
		entries := recurringEntries(ownerID, in, rule, today)
		written, err := x.writeBatch(ctx, entries)
		if err != nil {
			slog.Error("recurring batch failed, rule left for sweep", "error", err, "rule_id", rule.ID, "owner_id", ownerID)
			return nil, err
		}
		return written, nil
	}

	return nil, ErrMissingPlan
}

func (x *Expander) writeBatch(ctx context.Context, entries []Entry) ([]Entry, error) {
	ids, err := x.entries.CreateBatch(ctx, entries)
	if err != nil {
		return nil, apperr.Store(err)
	}
	for i := range entries {
		if i < len(ids) {
			entries[i].ID = ids[i]
		}
	}
	return entries, nil
}

// installmentEntries splits in.Amount into count rows a month apart. Each row
// gets the amount truncated to cents and the last one absorbs the remainder, so
// the rows always add up to the original amount.
func installmentEntries(ownerID uuid.UUID, in Intent, count int, today time.Time) ([]Entry, error) {
	if count < MinInstallments || count > MaxInstallments {
		return nil, ErrInstallmentCount
	}
	n := decimal.NewFromInt(int64(count))
	share := in.Amount.Div(n).Truncate(2)
	if !share.IsPositive() {
		return nil, ErrInstallmentTooSmall
	}
	last := in.Amount.Sub(share.Mul(decimal.NewFromInt(int64(count - 1))))

	entries := make([]Entry, 0, count)
	for i := 1; i <= count; i++ {
		amount := share
		if i == count {
			amount = last
		}
		title := fmt.Sprintf("%s (Parcela %d/%d)", in.Title, i, count)
		date := calendar.AddMonths(in.Date, i-1)

		entry := newEntry(ownerID, in, title, amount, date, today)
		entry.InstallmentCount = count
		entry.InstallmentIndex = i
		entries = append(entries, entry)
	}
	return entries, nil
}

func recurringEntries(ownerID uuid.UUID, in Intent, rule recurring.Rule, today time.Time) []Entry {
	entries := make([]Entry, 0, rule.GeneratedCount)
	for i := 0; i < rule.GeneratedCount; i++ {
		date := rule.Frequency.Occurrence(rule.StartDate, i)
		entry := newEntry(ownerID, in, in.Title, in.Amount, date, today)
		ruleID := rule.ID
		entry.RecurringRuleID = &ruleID
		entries = append(entries, entry)
	}
	return entries
}

func newEntry(ownerID uuid.UUID, in Intent, title string, amount decimal.Decimal, date, today time.Time) Entry {
	now := time.Now().UTC()
	return Entry{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Amount:      amount,
		Kind:        in.Kind,
		Scope:       in.Scope,
		Status:      StatusFor(date, today),
		Date:        date,
		CategoryID:  in.CategoryID,
		SpecialType: in.Plan.specialType(),
		CoupleID:    sharedCouple(in),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func sharedCouple(in Intent) *uuid.UUID {
	if in.Scope != ScopeShared || in.CoupleID == nil {
		return nil
	}
	id := *in.CoupleID
	return &id
}
