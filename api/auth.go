package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/billbatista/casal-ledger/middleware"
	"github.com/billbatista/casal-ledger/session"
	"github.com/billbatista/casal-ledger/user"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	registeredUser, err := s.stores.Users.Register(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailExists):
			writeJSONError(w, http.StatusConflict, "email_exists", err.Error())
		case errors.Is(err, user.ErrBlankPassword), errors.Is(err, user.ErrInvalidEmail):
			writeJSONError(w, http.StatusBadRequest, "invalid_input", err.Error())
		default:
			slog.Error("failed to register user", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "store_error", "internal server error")
		}
		return
	}

	if !s.startSession(w, r, registeredUser) {
		return
	}
	slog.Info("user registered", "user_id", registeredUser.ID)
	writeJSON(w, http.StatusCreated, registeredUser)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userdb, err := s.stores.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		slog.Error("failed to fetch user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "store_error", "internal server error")
		return
	}
	if userdb == nil || user.VerifyPassword(userdb.PasswordHash, req.Password) != nil {
		writeJSONError(w, http.StatusUnauthorized, "authentication_required", "invalid email or password")
		return
	}

	if !s.startSession(w, r, userdb) {
		return
	}
	writeJSON(w, http.StatusOK, userdb)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *user.User) bool {
	sess, err := s.stores.Sessions.Create(r.Context(), u.ID)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "store_error", "internal server error")
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if r.URL.Query().Get("all") == "true" {
		if err := s.stores.Sessions.DeleteByUserID(r.Context(), id.UserID); err != nil {
			slog.Error("failed to delete user sessions", "error", err, "user_id", id.UserID)
		}
	} else if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := s.stores.Sessions.Delete(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session", "error", err)
		}
	}
	s.caches.Forget(id.SessionID)
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.stores.Users.GetByID(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeJSONError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.stores.Users.UpdateName(r.Context(), identity(r).UserID, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	s.me(w, r)
}
