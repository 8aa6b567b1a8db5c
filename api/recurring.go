package api

import (
	"net/http"

	"github.com/billbatista/casal-ledger/recurring"
	"github.com/google/uuid"
)

type sweepResponse struct {
	Success bool `json:"success"`
	recurring.Result
}

// processMyRecurring sweeps the caller's rules.
func (s *Server) processMyRecurring(w http.ResponseWriter, r *http.Request) {
	owner := identity(r).UserID
	s.sweep(w, r, &owner)
}

// processAllRecurring is the scheduled trigger; it sweeps every owner.
func (s *Server) processAllRecurring(w http.ResponseWriter, r *http.Request) {
	s.sweep(w, r, nil)
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request, owner *uuid.UUID) {
	result, err := s.sweeper.Process(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Success: len(result.Errors) == 0, Result: result})
}
