package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, token, expires_at, created_at`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	s, err := New(userID)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Token, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session for user %s: %w", userID, err)
	}
	return s, nil
}

// GetByToken returns the session for token. Unknown tokens are
// ErrInvalidSession and stale ones ErrExpiredSession.
func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)

	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrInvalidSession
	case err != nil:
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if err := s.Check(time.Now()); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) Delete(ctx context.Context, token string) error {
	return r.exec(ctx, "deleting session", `DELETE FROM sessions WHERE token = $1`, token)
}

// DeleteByUserID signs the user out of every device.
func (r *repository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.exec(ctx, "deleting user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (r *repository) exec(ctx context.Context, what, query string, arg any) error {
	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
