package api

import (
	"net/http"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/balance"
	"github.com/billbatista/casal-ledger/calendar"
	"github.com/billbatista/casal-ledger/ledger"
)

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	scope := ledger.ScopeIndividual
	if v := r.URL.Query().Get("scope"); v != "" {
		scope = ledger.Scope(v)
	}
	period := calendar.PeriodOf(s.now())
	if v := r.URL.Query().Get("month"); v != "" {
		p, err := calendar.ParsePeriod(v)
		if err != nil {
			writeError(w, r, apperr.InvalidInput("month must be YYYY-MM"))
			return
		}
		period = p
	}

	rows, err := s.reconciler(id).Visible(r.Context(), id.UserID, id.Email, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance.Compute(rows, period))
}
