// Package balance derives balances and period composition from the ledger
// entries visible under one scope.
package balance

import (
	"sort"

	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Summary struct {
	Period string `json:"period"`

	// Cumulative over every entry dated up to the end of the period.
	Available decimal.Decimal `json:"available"`
	Projected decimal.Decimal `json:"projected"`

	// Completed entries dated inside the period.
	IncomeTotal            decimal.Decimal `json:"income_total"`
	ExpenseTotal           decimal.Decimal `json:"expense_total"`
	ExpensePercentOfIncome decimal.Decimal `json:"expense_percent_of_income"`
	IncomePercentOfTotal   decimal.Decimal `json:"income_percent_of_total"`
	ByCategory             []CategoryTotal `json:"by_category"`
}

type CategoryTotal struct {
	CategoryID *uuid.UUID      `json:"category_id"`
	Total      decimal.Decimal `json:"total"`
}

// Compute builds the summary of entries for period p.
func Compute(entries []ledger.Entry, p calendar.Period) Summary {
	s := Summary{
		Period:     p.String(),
		ByCategory: []CategoryTotal{},
	}
	end := p.End()

	for _, e := range entries {
		sign, ok := signOf(e.Kind)
		if !ok {
			continue
		}
		signed := e.Amount.Mul(sign)

		if !e.Date.After(end) {
			switch e.Status {
			case ledger.StatusCompleted:
				s.Available = s.Available.Add(signed)
				s.Projected = s.Projected.Add(signed)
			case ledger.StatusPending:
				s.Projected = s.Projected.Add(signed)
			}
		}

		if e.Status == ledger.StatusCompleted && p.Contains(e.Date) {
			if e.Kind == ledger.KindIncome {
				s.IncomeTotal = s.IncomeTotal.Add(e.Amount)
			} else {
				s.ExpenseTotal = s.ExpenseTotal.Add(e.Amount)
				s.ByCategory = addToCategory(s.ByCategory, e.CategoryID, e.Amount)
			}
		}
	}

	s.ExpensePercentOfIncome = Percent(s.ExpenseTotal, s.IncomeTotal)
	s.IncomePercentOfTotal = Percent(s.IncomeTotal, s.IncomeTotal.Add(s.ExpenseTotal))
	sort.SliceStable(s.ByCategory, func(i, j int) bool {
		return s.ByCategory[i].Total.GreaterThan(s.ByCategory[j].Total)
	})
	return s
}

// Percent is part as a percentage of whole, rounded to two decimals. A zero
// whole yields zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}

func signOf(k ledger.Kind) (decimal.Decimal, bool) {
	switch k {
	case ledger.KindIncome:
		return decimal.NewFromInt(1), true
	case ledger.KindExpense:
		return decimal.NewFromInt(-1), true
	}
	return decimal.Zero, false
}

func addToCategory(totals []CategoryTotal, id *uuid.UUID, amount decimal.Decimal) []CategoryTotal {
	for i := range totals {
		if sameCategory(totals[i].CategoryID, id) {
			totals[i].Total = totals[i].Total.Add(amount)
			return totals
		}
	}
	return append(totals, CategoryTotal{CategoryID: id, Total: amount})
}

func sameCategory(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
