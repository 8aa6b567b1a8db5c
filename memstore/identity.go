package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/billbatista/casal-ledger/session"
	"github.com/billbatista/casal-ledger/user"
	"github.com/google/uuid"
)

// Identity keeps users and sessions for the memory storage driver.
type Identity struct {
	mu       sync.Mutex
	users    map[uuid.UUID]user.User
	sessions map[string]session.Session
}

func NewIdentity() *Identity {
	return &Identity{
		users:    make(map[uuid.UUID]user.User),
		sessions: make(map[string]session.Session),
	}
}

func (s *Identity) Users() *UserRepo       { return &UserRepo{s: s} }
func (s *Identity) Sessions() *SessionRepo { return &SessionRepo{s: s} }

type UserRepo struct {
	s *Identity
}

func (r *UserRepo) Register(_ context.Context, email, password string) (*user.User, error) {
	u, err := user.New(email, password)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return nil, user.ErrEmailExists
		}
	}
	r.s.users[u.ID] = *u
	return u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) UpdateName(_ context.Context, userID uuid.UUID, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil
	}
	u.Name = strings.TrimSpace(name)
	r.s.users[userID] = u
	return nil
}

type SessionRepo struct {
	s *Identity
}

func (r *SessionRepo) Create(_ context.Context, userID uuid.UUID) (*session.Session, error) {
	sess, err := session.New(userID)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[sess.Token] = *sess
	return sess, nil
}

func (r *SessionRepo) GetByToken(_ context.Context, token string) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[token]
	if !ok {
		return nil, session.ErrInvalidSession
	}
	if err := sess.Check(time.Now()); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *SessionRepo) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, token)
	return nil
}

func (r *SessionRepo) DeleteByUserID(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for token, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, token)
		}
	}
	return nil
}
