// Package api exposes the ledger over JSON HTTP endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/billbatista/casal-ledger/apperr"
	"github.com/billbatista/casal-ledger/couple"
	"github.com/billbatista/casal-ledger/ledger"
	"github.com/billbatista/casal-ledger/middleware"
	"github.com/billbatista/casal-ledger/recurring"
	"github.com/billbatista/casal-ledger/session"
	"github.com/billbatista/casal-ledger/user"
	"github.com/billbatista/casal-ledger/view"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

// Stores groups the repositories the server reads and writes.
type Stores struct {
	Users    user.Repository
	Sessions session.Repository
	Entries  ledger.Repository
	Rules    recurring.Repository
	Couples  couple.Repository
}

type Server struct {
	stores       Stores
	caches       *view.Caches
	sweeper      *recurring.Sweeper
	orphanGrace  time.Duration
	cronSecret   string
	secureCookie bool
	now          func() time.Time
}

type Option func(*Server)

// WithCronSecret sets the bearer secret accepted by GET /process-recurring.
func WithCronSecret(secret string) Option {
	return func(s *Server) {
		s.cronSecret = secret
	}
}

func WithCaches(c *view.Caches) Option {
	return func(s *Server) {
		s.caches = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithOrphanGrace(d time.Duration) Option {
	return func(s *Server) {
		s.orphanGrace = d
	}
}

func WithSecureCookies(secure bool) Option {
	return func(s *Server) {
		s.secureCookie = secure
	}
}

func NewServer(stores Stores, opts ...Option) *Server {
	s := &Server{
		stores: stores,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.caches == nil {
		s.caches = view.NewCaches(view.DefaultTTL, 0)
	}
	sweepOpts := []recurring.SweeperOption{recurring.WithClock(s.now)}
	if s.orphanGrace > 0 {
		sweepOpts = append(sweepOpts, recurring.WithOrphanGrace(s.orphanGrace))
	}
	s.sweeper = recurring.NewSweeper(stores.Rules, stores.Entries, sweepOpts...)
	return s
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.AuthMiddleware(s.stores.Sessions, s.stores.Users))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	router.Post("/user/register", s.register)
	router.Post("/user/login", s.login)
	router.With(middleware.RequireBearer(s.cronSecret)).Get("/process-recurring", s.processAllRecurring)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Post("/user/logout", s.logout)
		r.Get("/user/me", s.me)
		r.Patch("/user/me", s.updateMe)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.listEntries)
			r.Post("/", s.createEntry)
			r.Delete("/installments", s.deleteInstallments)
			r.Delete("/rules/{ruleID}", s.deleteSeries)
			r.Patch("/{id}", s.updateEntry)
			r.Delete("/{id}", s.deleteEntry)
		})

		r.Get("/balance", s.balance)

		r.Route("/couple", func(r chi.Router) {
			r.Get("/", s.currentCouple)
			r.Post("/request", s.requestPair)
			r.Post("/accept", s.acceptPair)
			r.Post("/decline", s.declinePair)
			r.Post("/cancel", s.cancelPair)
			r.Post("/unlink", s.unlink)
			r.Post("/shared-budget", s.setSharedBudget)
		})

		r.Post("/process-recurring", s.processMyRecurring)
	})

	return router
}

// reconciler builds the view over the session cache of the caller.
func (s *Server) reconciler(id middleware.Identity) *view.Reconciler {
	return view.New(s.stores.Entries, s.stores.Couples, s.caches.For(id.SessionID))
}

func (s *Server) pairing(rec *view.Reconciler) *couple.Service {
	return couple.NewService(s.stores.Couples, s.stores.Entries, rec)
}

// identity is only called behind RequireIdentity.
func identity(r *http.Request) middleware.Identity {
	id, _ := middleware.GetIdentity(r.Context())
	return id
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnlinkBlocked:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto its HTTP status. Store failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeJSONError(w, status, string(apperr.KindStore), "internal server error")
		return
	}
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	writeJSONError(w, status, string(kind), msg)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidInput("invalid request body: %v", err)
	}
	return nil
}
