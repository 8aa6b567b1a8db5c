package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/billbatista/casal-ledger/view"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxPage         = 1_000_000
)

type entryRequest struct {
	Title            string             `json:"title"`
	Amount           decimal.Decimal    `json:"amount"`
	Kind             ledger.Kind        `json:"kind"`
	Scope            ledger.Scope       `json:"scope"`
	CategoryID       *uuid.UUID         `json:"category_id"`
	Date             string             `json:"date"`
	SpecialType      ledger.SpecialType `json:"special_type"`
	InstallmentCount int                `json:"installment_count"`
	Frequency        string             `json:"frequency"`
}

func (req entryRequest) intent() (ledger.Intent, error) {
	in := ledger.Intent{
		Title:      req.Title,
		Amount:     req.Amount,
		Kind:       req.Kind,
		Scope:      req.Scope,
		CategoryID: req.CategoryID,
	}
	if req.Date == "" {
		return in, ledger.ErrMissingDate
	}
	date, err := calendar.Parse(req.Date)
	if err != nil {
		return in, apperr.InvalidInput("date must be YYYY-MM-DD")
	}
	in.Date = date

	switch req.SpecialType {
	case "", ledger.SpecialSimple:
		in.Plan = ledger.Simple{}
	case ledger.SpecialInstallment:
		in.Plan = ledger.Installments{Count: req.InstallmentCount}
	case ledger.SpecialRecurring:
		freq, err := recurring.ParseFrequency(req.Frequency)
		if err != nil {
			return in, apperr.InvalidInput("frequency must be daily, weekly, monthly or yearly")
		}
		in.Plan = ledger.Recurrence{Frequency: freq}
	default:
		return in, apperr.InvalidInput("unknown special type %q", req.SpecialType)
	}
	return in, nil
}

type patchRequest struct {
	Title      *string          `json:"title"`
	Amount     *decimal.Decimal `json:"amount"`
	Kind       *ledger.Kind     `json:"kind"`
	Scope      *ledger.Scope    `json:"scope"`
	Status     *ledger.Status   `json:"status"`
	Date       *string          `json:"date"`
	CategoryID *uuid.UUID       `json:"category_id"`
}

func (req patchRequest) patch() (ledger.Patch, error) {
	p := ledger.Patch{
		Title:      req.Title,
		Amount:     req.Amount,
		Kind:       req.Kind,
		Scope:      req.Scope,
		Status:     req.Status,
		CategoryID: req.CategoryID,
	}
	if req.Date != nil {
		date, err := calendar.Parse(*req.Date)
		if err != nil {
			return p, apperr.InvalidInput("date must be YYYY-MM-DD")
		}
		p.Date = &date
	}
	return p, nil
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.intent()
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := s.reconciler(id)
	if in.Scope == ledger.ScopeShared {
		in.CoupleID, err = rec.ActiveCouple(r.Context(), id.UserID, id.Email)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	expander := ledger.NewExpander(s.stores.Entries, s.stores.Rules, s.now)
	entries, err := expander.Expand(r.Context(), id.UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec.Invalidate(id.UserID)

	writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	q, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.OwnerID = id.UserID
	q.Email = id.Email

	page, err := s.reconciler(id).List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":   page.Rows,
		"total":     page.Total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

func listQuery(r *http.Request) (view.Query, error) {
	values := r.URL.Query()
	q := view.Query{
		Scope:    ledger.ScopeIndividual,
		Page:     1,
		PageSize: defaultPageSize,
	}
	if v := values.Get("scope"); v != "" {
		q.Scope = ledger.Scope(v)
	}
	if v := values.Get("month"); v != "" {
		p, err := calendar.ParsePeriod(v)
		if err != nil {
			return q, apperr.InvalidInput("month must be YYYY-MM")
		}
		q.Period = &p
	}
	if v := values.Get("kind"); v != "" {
		q.Kind = ledger.Kind(v)
		if !q.Kind.Valid() && q.Kind != ledger.KindTransfer {
			return q, ledger.ErrInvalidKind
		}
	}
	if v := values.Get("status"); v != "" {
		q.Status = ledger.Status(v)
		if !q.Status.Valid() {
			return q, ledger.ErrInvalidStatus
		}
	}
	if v := values.Get("category_id"); v != "" {
		cid, err := uuid.Parse(v)
		if err != nil {
			return q, apperr.InvalidInput("invalid category_id")
		}
		q.CategoryID = &cid
	}
	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPage {
			return q, apperr.InvalidInput("page must be between 1 and %d", maxPage)
		}
		q.Page = n
	}
	if v := values.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return q, apperr.InvalidInput("page_size must be between 1 and %d", maxPageSize)
		}
		q.PageSize = n
	}
	return q, nil
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, ledger.ErrEntryNotFound)
		return
	}
	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec := s.reconciler(id)
	if patch.Scope != nil && *patch.Scope == ledger.ScopeShared {
		patch.CoupleID, err = rec.ActiveCouple(r.Context(), id.UserID, id.Email)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	entry, err := s.stores.Entries.Update(r.Context(), entryID, id.UserID, patch)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	rec.Invalidate(id.UserID)
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, ledger.ErrEntryNotFound)
		return
	}
	if err := s.stores.Entries.Delete(r.Context(), entryID, id.UserID); err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	s.reconciler(id).Invalidate(id.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteSeries(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, r, ledger.ErrGroupNotFound)
		return
	}
	n, err := s.stores.Entries.DeleteByRule(r.Context(), ruleID, id.UserID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	s.reconciler(id).Invalidate(id.UserID)
	slog.Info("recurring series deleted", "rule_id", ruleID, "owner_id", id.UserID, "entries", n)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) deleteInstallments(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	title := r.URL.Query().Get("title")
	if title == "" {
		writeError(w, r, ledger.ErrEmptyTitle)
		return
	}
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < ledger.MinInstallments || count > ledger.MaxInstallments {
		writeError(w, r, ledger.ErrInstallmentCount)
		return
	}

	n, err := s.stores.Entries.DeleteByInstallmentGroup(r.Context(), title, count, id.UserID)
	if err != nil {
		writeError(w, r, apperr.Store(err))
		return
	}
	s.reconciler(id).Invalidate(id.UserID)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
