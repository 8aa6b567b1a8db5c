// Package view resolves which ledger rows a caller sees under the individual
// and shared scopes, and links legacy shared rows to a couple once it is active.
package view

import (
	"context"
	"log/slog"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/google/uuid"
)

type Query struct {
	OwnerID    uuid.UUID
	Email      string
	Scope      ledger.Scope
	Kind       ledger.Kind
	Status     ledger.Status
	CategoryID *uuid.UUID
	Period     *calendar.Period
	Page       int
	PageSize   int
}

type Reconciler struct {
	entries ledger.Repository
	couples couple.Repository
	cache   *Cache
}

func New(entries ledger.Repository, couples couple.Repository, cache *Cache) *Reconciler {
	return &Reconciler{entries: entries, couples: couples, cache: cache}
}

// List returns one page of the rows visible to the caller, newest first.
func (r *Reconciler) List(ctx context.Context, q Query) (ledger.Page, error) {
	vis, err := r.visibility(ctx, q.OwnerID, q.Email, q.Scope)
	if err != nil {
		return ledger.Page{}, err
	}
	filters := ledger.Filters{
		Visibility: vis,
		Kind:       q.Kind,
		Status:     q.Status,
		CategoryID: q.CategoryID,
		Period:     q.Period,
	}
	page, err := r.entries.Get(ctx, filters, q.Page, q.PageSize)
	if err != nil {
		return ledger.Page{}, apperr.Store(err)
	}
	return page, nil
}

// Visible returns every row the caller sees under scope, served from the
// session cache while it is fresh. Writes by the other partner only show up
// once the snapshot expires.
func (r *Reconciler) Visible(ctx context.Context, ownerID uuid.UUID, email string, scope ledger.Scope) ([]ledger.Entry, error) {
	if rows, ok := r.cache.Snapshot(ownerID, scope); ok {
		return rows, nil
	}
	vis, err := r.visibility(ctx, ownerID, email, scope)
	if err != nil {
		return nil, err
	}
	page, err := r.entries.Get(ctx, ledger.Filters{Visibility: vis}, 0, 0)
	if err != nil {
		return nil, apperr.Store(err)
	}
	r.cache.SetSnapshot(ownerID, scope, page.Rows)
	return page.Rows, nil
}

// Backfill links the owner's shared rows without a couple to the owner's active
// couple. It runs at most once per owner while the session cache remembers it.
func (r *Reconciler) Backfill(ctx context.Context, ownerID uuid.UUID, email string) error {
	if r.cache.Backfilled(ownerID) {
		return nil
	}
	id, err := r.lookupCouple(ctx, ownerID, email)
	if err != nil {
		return err
	}
	if id == nil {
		return nil
	}
	return r.link(ctx, ownerID, *id)
}

// ActiveCouple returns the id of the caller's active couple, or nil when they
// are not paired. New shared rows are linked to it.
func (r *Reconciler) ActiveCouple(ctx context.Context, ownerID uuid.UUID, email string) (*uuid.UUID, error) {
	if id, ok := r.cache.CoupleID(ownerID); ok {
		return id, nil
	}
	return r.lookupCouple(ctx, ownerID, email)
}

// Invalidate must be called after the owner mutates the ledger or their couple.
func (r *Reconciler) Invalidate(ownerID uuid.UUID) {
	r.cache.Invalidate(ownerID)
}

func (r *Reconciler) visibility(ctx context.Context, ownerID uuid.UUID, email string, scope ledger.Scope) (ledger.Visibility, error) {
	switch scope {
	case ledger.ScopeIndividual:
		return ledger.Visibility{OwnerID: ownerID, Scope: scope}, nil
	case ledger.ScopeShared:
	default:
		return ledger.Visibility{}, ledger.ErrInvalidScope
	}

	id, err := r.ActiveCouple(ctx, ownerID, email)
	if err != nil {
		return ledger.Visibility{}, err
	}
	if id != nil && !r.cache.Backfilled(ownerID) {
		if err := r.link(ctx, ownerID, *id); err != nil {
			slog.Warn("shared backfill failed", "error", err, "owner_id", ownerID, "couple_id", *id)
		}
	}
	return ledger.Visibility{OwnerID: ownerID, Scope: scope, CoupleID: id}, nil
}

func (r *Reconciler) lookupCouple(ctx context.Context, ownerID uuid.UUID, email string) (*uuid.UUID, error) {
	c, err := r.couples.FindOpenByEmail(ctx, couple.NormalizeEmail(email))
	if err != nil {
		return nil, apperr.Store(err)
	}
	var id *uuid.UUID
	if c != nil && c.Status == couple.StatusActive {
		cid := c.ID
		id = &cid
	}
	r.cache.SetCoupleID(ownerID, id)
	return id, nil
}

func (r *Reconciler) link(ctx context.Context, ownerID, coupleID uuid.UUID) error {
	n, err := r.entries.LinkCouple(ctx, ownerID, coupleID)
	if err != nil {
		return apperr.Store(err)
	}
	if n > 0 {
		slog.Info("linked shared entries to couple", "owner_id", ownerID, "couple_id", coupleID, "count", n)
		r.cache.DropSnapshots(ownerID)
	}
	r.cache.MarkBackfilled(ownerID)
	return nil
}
