package recurring

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/billbatista/casal-ledger/calendar"
	"github.com/google/uuid"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rule Rule) error {
	query := `INSERT INTO recurring_rules (id, owner_id, frequency, start_date, next_execution_date, generated_count, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rule.ID,
		rule.OwnerID,
		rule.Frequency,
		rule.StartDate,
		rule.NextExecutionDate,
		rule.GeneratedCount,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting recurring rule: %w", err)
	}
	return nil
}

func (r *repository) ListActive(ctx context.Context, q Query) ([]Rule, error) {
	query := `SELECT id, owner_id, frequency, start_date, next_execution_date, generated_count, is_active, created_at, updated_at
              FROM recurring_rules
              WHERE is_active = TRUE`
	var args []any
	if q.OwnerID != nil {
		query += ` AND owner_id = $1`
		args = append(args, *q.OwnerID)
	}
	query += ` ORDER BY next_execution_date ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recurring rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		err := rows.Scan(
			&rule.ID,
			&rule.OwnerID,
			&rule.Frequency,
			&rule.StartDate,
			&rule.NextExecutionDate,
			&rule.GeneratedCount,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rule.StartDate = calendar.Date(rule.StartDate)
		rule.NextExecutionDate = calendar.Date(rule.NextExecutionDate)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Deactivate reports whether the rule was active before the call.
func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE recurring_rules SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("deactivating recurring rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	query := `DELETE FROM recurring_rules WHERE id = $1 AND owner_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, ownerID)
	return err
}
