// Package memstore keeps ledger entries, recurring rules and couples in memory.
// It follows the same contracts as the Postgres repositories and backs tests
// and the "memory" storage driver.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/google/uuid"
)

var ErrCoupleNotFound = errors.New("couple not found")

type Store struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]ledger.Entry
	rules     map[uuid.UUID]recurring.Rule
	couples   map[uuid.UUID]couple.Couple
	failBatch error
}

func New() *Store {
	return &Store{
		entries: make(map[uuid.UUID]ledger.Entry),
		rules:   make(map[uuid.UUID]recurring.Rule),
		couples: make(map[uuid.UUID]couple.Couple),
	}
}

func (s *Store) Entries() *EntryRepo { return &EntryRepo{s: s} }
func (s *Store) Rules() *RuleRepo { return &RuleRepo{s: s} }
func (s *Store) Couples() *CoupleRepo { return &CoupleRepo{s: s} }

// FailNextBatch makes the next CreateBatch call fail with err without writing.
func (s *Store) FailNextBatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBatch = err
}

type EntryRepo struct {
	s *Store
}

func (r *EntryRepo) Create(ctx context.Context, entry ledger.Entry) (uuid.UUID, error) {
	ids, err := r.CreateBatch(ctx, []ledger.Entry{entry})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

func (r *EntryRepo) CreateBatch(_ context.Context, entries []ledger.Entry) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.failBatch; err != nil {
		r.s.failBatch = nil
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		r.s.entries[e.ID] = e
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *EntryRepo) Get(_ context.Context, filters ledger.Filters, page, pageSize int) (ledger.Page, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := make([]ledger.Entry, 0)
	for _, e := range r.s.entries {
		if filters.Matches(e) {
			rows = append(rows, e)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})

	total := len(rows)
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		start := total
		if page-1 < total/pageSize+1 {
			start = min((page-1)*pageSize, total)
		}
		rows = rows[start : start+min(pageSize, total-start)]
	}
	return ledger.Page{Rows: rows, Total: total}, nil
}

func (r *EntryRepo) Update(_ context.Context, id, ownerID uuid.UUID, patch ledger.Patch) (ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.entries[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	if current.OwnerID != ownerID {
		return ledger.Entry{}, ledger.ErrNotEntryOwner
	}
	updated, err := current.Apply(patch)
	if err != nil {
		return ledger.Entry{}, err
	}
	r.s.entries[id] = updated
	return updated, nil
}

func (r *EntryRepo) Delete(_ context.Context, id, ownerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	if current.OwnerID != ownerID {
		return ledger.ErrNotEntryOwner
	}
	delete(r.s.entries, id)
	return nil
}

func (r *EntryRepo) DeleteByRule(_ context.Context, ruleID, ownerID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := r.s.deleteWhere(func(e ledger.Entry) bool {
		return e.OwnerID == ownerID && e.RecurringRuleID != nil && *e.RecurringRuleID == ruleID
	})
	rule, ok := r.s.rules[ruleID]
	ruleDeleted := ok && rule.OwnerID == ownerID
	if ruleDeleted {
		delete(r.s.rules, ruleID)
	}
	if n == 0 && !ruleDeleted {
		return 0, ledger.ErrGroupNotFound
	}
	return n, nil
}

func (r *EntryRepo) DeleteByInstallmentGroup(_ context.Context, titlePrefix string, installmentCount int, ownerID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := r.s.deleteWhere(func(e ledger.Entry) bool {
		return e.OwnerID == ownerID &&
			e.SpecialType == ledger.SpecialInstallment &&
			e.InstallmentCount == installmentCount &&
			strings.HasPrefix(e.Title, titlePrefix+" (Parcela ")
	})
	if n == 0 {
		return 0, ledger.ErrGroupNotFound
	}
	return n, nil
}

func (r *EntryRepo) CountByCouple(_ context.Context, coupleID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, e := range r.s.entries {
		if e.CoupleID != nil && *e.CoupleID == coupleID {
			n++
		}
	}
	return n, nil
}

func (r *EntryRepo) CountByRule(_ context.Context, ruleID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, e := range r.s.entries {
		if e.RecurringRuleID != nil && *e.RecurringRuleID == ruleID {
			n++
		}
	}
	return n, nil
}

func (r *EntryRepo) LinkCouple(_ context.Context, ownerID, coupleID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for id, e := range r.s.entries {
		if e.OwnerID == ownerID && e.Scope == ledger.ScopeShared && e.CoupleID == nil {
			cid := coupleID
			e.CoupleID = &cid
			e.UpdatedAt = time.Now().UTC()
			r.s.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteWhere(match func(ledger.Entry) bool) int {
	n := 0
	for id, e := range s.entries {
		if match(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

type RuleRepo struct {
	s *Store
}

func (r *RuleRepo) Create(_ context.Context, rule recurring.Rule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.rules[rule.ID] = rule
	return nil
}

func (r *RuleRepo) ListActive(_ context.Context, q recurring.Query) ([]recurring.Rule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rules []recurring.Rule
	for _, rule := range r.s.rules {
		if !rule.IsActive {
			continue
		}
		if q.OwnerID != nil && rule.OwnerID != *q.OwnerID {
			continue
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].NextExecutionDate.Before(rules[j].NextExecutionDate)
	})
	return rules, nil
}

func (r *RuleRepo) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[id]
	if !ok || !rule.IsActive {
		return false, nil
	}
	rule.IsActive = false
	rule.UpdatedAt = time.Now().UTC()
	r.s.rules[id] = rule
	return true, nil
}

func (r *RuleRepo) Delete(_ context.Context, id, ownerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if rule, ok := r.s.rules[id]; ok && rule.OwnerID == ownerID {
		delete(r.s.rules, id)
	}
	return nil
}

// Get returns a rule by id, for tests.
func (r *RuleRepo) Get(id uuid.UUID) (recurring.Rule, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	return rule, ok
}

// All returns every stored rule, for tests.
func (r *RuleRepo) All() []recurring.Rule {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rules := make([]recurring.Rule, 0, len(r.s.rules))
	for _, rule := range r.s.rules {
		rules = append(rules, rule)
	}
	return rules
}

type CoupleRepo struct {
	s *Store
}

func (r *CoupleRepo) FindByPair(_ context.Context, emailA, emailB string) (*couple.Couple, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.couples {
		if samePair(c, emailA, emailB) {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *CoupleRepo) FindOpenByEmail(_ context.Context, email string) (*couple.Couple, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var found *couple.Couple
	for _, c := range r.s.couples {
		if c.Status == couple.StatusInactive || !c.Involves(email) {
			continue
		}
		if found == nil || betterOpen(c, *found) {
			found = &c
		}
	}
	return found, nil
}

func (r *CoupleRepo) Create(_ context.Context, c couple.Couple) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.couples {
		if samePair(existing, c.PartnerAEmail, c.PartnerBEmail) {
			return couple.ErrDuplicatePair
		}
	}
	r.s.couples[c.ID] = c
	return nil
}

func (r *CoupleRepo) Update(_ context.Context, c couple.Couple) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.couples[c.ID]; !ok {
		return ErrCoupleNotFound
	}
	r.s.couples[c.ID] = c
	return nil
}

// Count returns how many couple rows exist, for tests.
func (r *CoupleRepo) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.couples)
}

func samePair(c couple.Couple, a, b string) bool {
	return (c.PartnerAEmail == a && c.PartnerBEmail == b) || (c.PartnerAEmail == b && c.PartnerBEmail == a)
}

// betterOpen prefers active couples, then the most recently updated.
func betterOpen(c, than couple.Couple) bool {
	if (c.Status == couple.StatusActive) != (than.Status == couple.StatusActive) {
		return c.Status == couple.StatusActive
	}
	return c.UpdatedAt.After(than.UpdatedAt)
}
