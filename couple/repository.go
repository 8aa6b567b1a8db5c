package couple

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

const coupleColumns = `id, partner_a_email, partner_b_email, status, partner_a_accepted, partner_b_accepted,
              shared_budget_enabled, created_at, updated_at`

func (r *repository) FindByPair(ctx context.Context, emailA, emailB string) (*Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples
              WHERE (partner_a_email = $1 AND partner_b_email = $2) OR (partner_a_email = $2 AND partner_b_email = $1)
              LIMIT 1`
	return r.queryOne(ctx, query, emailA, emailB)
}

func (r *repository) FindOpenByEmail(ctx context.Context, email string) (*Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples
              WHERE (partner_a_email = $1 OR partner_b_email = $1) AND status <> 'inactive'
              ORDER BY (status = 'active') DESC, updated_at DESC
              LIMIT 1`
	return r.queryOne(ctx, query, email)
}

func (r *repository) Create(ctx context.Context, c Couple) error {
	query := `INSERT INTO couples (` + coupleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		c.ID,
		c.PartnerAEmail,
		c.PartnerBEmail,
		c.Status,
		c.PartnerAAccepted,
		c.PartnerBAccepted,
		c.SharedBudgetEnabled,
		c.CreatedAt,
		c.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicatePair
	}
	if err != nil {
		return fmt.Errorf("inserting couple: %w", err)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, c Couple) error {
	query := `UPDATE couples
              SET partner_a_email = $1, partner_b_email = $2, status = $3, partner_a_accepted = $4,
                  partner_b_accepted = $5, shared_budget_enabled = $6, updated_at = $7
              WHERE id = $8`
	res, err := r.db.ExecContext(
		ctx,
		query,
		c.PartnerAEmail,
		c.PartnerBEmail,
		c.Status,
		c.PartnerAAccepted,
		c.PartnerBAccepted,
		c.SharedBudgetEnabled,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating couple: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating couple %s: %w", c.ID, sql.ErrNoRows)
	}
	return nil
}

func (r *repository) queryOne(ctx context.Context, query string, args ...any) (*Couple, error) {
	var c Couple
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID,
		&c.PartnerAEmail,
		&c.PartnerBEmail,
		&c.Status,
		&c.PartnerAAccepted,
		&c.PartnerBAccepted,
		&c.SharedBudgetEnabled,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying couple: %w", err)
	}
	return &c, nil
}
