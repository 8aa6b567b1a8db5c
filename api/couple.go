package api

import (
	"net/http"

	"github.com/billbatista/casal-ledger/couple"
)

type coupleResponse struct {
	Couple  *couple.Couple `json:"couple"`
	State   couple.State   `json:"state"`
	Partner string         `json:"partner_email,omitempty"`
}

func (s *Server) respondCouple(w http.ResponseWriter, email string, c *couple.Couple) {
	resp := coupleResponse{Couple: c, State: couple.StateFor(c, email)}
	if c != nil {
		resp.Partner = c.PartnerOf(email)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) currentCouple(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	c, _, err := s.pairing(s.reconciler(id)).Current(r.Context(), id.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondCouple(w, couple.NormalizeEmail(id.Email), c)
}

func (s *Server) requestPair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.RequestPair(r.Context(), me, req.Email)
	})
}

func (s *Server) acceptPair(w http.ResponseWriter, r *http.Request) {
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.Accept(r.Context(), me)
	})
}

func (s *Server) declinePair(w http.ResponseWriter, r *http.Request) {
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.Decline(r.Context(), me)
	})
}

func (s *Server) cancelPair(w http.ResponseWriter, r *http.Request) {
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.Cancel(r.Context(), me)
	})
}

func (s *Server) unlink(w http.ResponseWriter, r *http.Request) {
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.Unlink(r.Context(), me)
	})
}

func (s *Server) setSharedBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.pairingAction(w, r, func(svc *couple.Service, me couple.Partner) (*couple.Couple, error) {
		return svc.SetSharedBudget(r.Context(), me, req.Enabled)
	})
}

// pairingAction runs a couple transition for the caller. The caller's cached
// couple is dropped before the transition so activation backfills against a
// fresh lookup, and again after it so later reads see the new state.
func (s *Server) pairingAction(w http.ResponseWriter, r *http.Request, action func(*couple.Service, couple.Partner) (*couple.Couple, error)) {
	id := identity(r)
	rec := s.reconciler(id)
	rec.Invalidate(id.UserID)

	c, err := action(s.pairing(rec), couple.Partner{UserID: id.UserID, Email: id.Email})
	rec.Invalidate(id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondCouple(w, couple.NormalizeEmail(id.Email), c)
}
