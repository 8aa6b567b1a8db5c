package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/google/uuid"
)

const DefaultOrphanGrace = time.Hour

// LinkCounter counts ledger entries generated from a rule.
type LinkCounter interface {
	CountByRule(ctx context.Context, ruleID uuid.UUID) (int, error)
}

type Result struct {
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

// Sweeper retires rules whose generated horizon has passed, and rules that were
// created but never got their entries written.
type Sweeper struct {
	rules       Repository
	links       LinkCounter
	now         func() time.Time
	orphanGrace time.Duration
}

type SweeperOption func(*Sweeper)

func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func WithOrphanGrace(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.orphanGrace = d
	}
}

func NewSweeper(rules Repository, links LinkCounter, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		rules:       rules,
		links:       links,
		now:         time.Now,
		orphanGrace: DefaultOrphanGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process sweeps the active rules of ownerID, or of every owner when ownerID is
// nil. Failures on individual rules are collected and do not stop the sweep.
func (s *Sweeper) Process(ctx context.Context, ownerID *uuid.UUID) (Result, error) {
	result := Result{Errors: []string{}}

	rules, err := s.rules.ListActive(ctx, Query{OwnerID: ownerID})
	if err != nil {
		return result, apperr.Store(err)
	}

	now := s.now().UTC()
	today := calendar.Date(now)
	for _, rule := range rules {
		retire, reason, err := s.shouldRetire(ctx, rule, today, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: %v", rule.ID, err))
			continue
		}
		if !retire {
			continue
		}

		changed, err := s.rules.Deactivate(ctx, rule.ID)
		if err != nil {
			slog.Error("failed to deactivate recurring rule", "error", err, "rule_id", rule.ID)
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: %v", rule.ID, err))
			continue
		}
		if changed {
			slog.Info("recurring rule retired", "rule_id", rule.ID, "owner_id", rule.OwnerID, "reason", reason)
			result.Processed++
		}
	}

	return result, nil
}

func (s *Sweeper) shouldRetire(ctx context.Context, rule Rule, today, now time.Time) (bool, string, error) {
	if rule.NextExecutionDate.Before(today) {
		return true, "horizon_expired", nil
	}
	if now.Sub(rule.CreatedAt) < s.orphanGrace {
		return false, "", nil
	}
	n, err := s.links.CountByRule(ctx, rule.ID)
	if err != nil {
		return false, "", err
	}
	return n == 0, "orphaned", nil
}
