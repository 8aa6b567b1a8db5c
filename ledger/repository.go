package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/billbatista/casal-ledger/calendar"
	"github.com/google/uuid"
)

const entryColumns = `id, owner_id, title, amount, kind, scope, status, date, category_id, special_type,
              installment_count, installment_index, recurring_rule_id, couple_id, created_at, updated_at`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry Entry) (uuid.UUID, error) {
	ids, err := r.CreateBatch(ctx, []Entry{entry})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

func (r *repository) CreateBatch(ctx context.Context, entries []Entry) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `INSERT INTO ledger_entries (` + entryColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
              RETURNING id`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		var id uuid.UUID
		err = stmt.QueryRowContext(
			ctx,
			e.ID,
			e.OwnerID,
			e.Title,
			e.Amount,
			e.Kind,
			e.Scope,
			e.Status,
			e.Date,
			nullUUID(e.CategoryID),
			e.SpecialType,
			nullInt(e.InstallmentCount),
			nullInt(e.InstallmentIndex),
			nullUUID(e.RecurringRuleID),
			nullUUID(e.CoupleID),
			e.CreatedAt,
			e.UpdatedAt,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting entry: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit()
}

func (r *repository) Get(ctx context.Context, filters Filters, page, pageSize int) (Page, error) {
	where, args := whereClause(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM ledger_entries WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("counting entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE ` + where + `
              ORDER BY date DESC, created_at DESC, id`
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Page{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	return Page{Rows: entries, Total: total}, nil
}

func (r *repository) Update(ctx context.Context, id, ownerID uuid.UUID, patch Patch) (Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`
	current, err := scanEntry(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("loading entry: %w", err)
	}
	if current.OwnerID != ownerID {
		return Entry{}, ErrNotEntryOwner
	}

	updated, err := current.Apply(patch)
	if err != nil {
		return Entry{}, err
	}

	query = `UPDATE ledger_entries
              SET title = $1, amount = $2, kind = $3, scope = $4, status = $5, date = $6, category_id = $7, couple_id = $8, updated_at = $9
              WHERE id = $10`
	_, err = tx.ExecContext(
		ctx,
		query,
		updated.Title,
		updated.Amount,
		updated.Kind,
		updated.Scope,
		updated.Status,
		updated.Date,
		nullUUID(updated.CategoryID),
		nullUUID(updated.CoupleID),
		updated.UpdatedAt,
		id,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("updating entry: %w", err)
	}

	return updated, tx.Commit()
}

func (r *repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	var owner uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM ledger_entries WHERE id = $1`, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("loading entry: %w", err)
	}
	if owner != ownerID {
		return ErrNotEntryOwner
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return err
}

func (r *repository) DeleteByRule(ctx context.Context, ruleID, ownerID uuid.UUID) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE recurring_rule_id = $1 AND owner_id = $2`, ruleID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deleting recurring entries: %w", err)
	}
	entries, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = $1 AND owner_id = $2`, ruleID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deleting recurring rule: %w", err)
	}
	rules, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if entries == 0 && rules == 0 {
		return 0, ErrGroupNotFound
	}

	return int(entries), tx.Commit()
}

func (r *repository) DeleteByInstallmentGroup(ctx context.Context, titlePrefix string, installmentCount int, ownerID uuid.UUID) (int, error) {
	query := `DELETE FROM ledger_entries
              WHERE owner_id = $1 AND special_type = $2 AND installment_count = $3 AND title LIKE $4 ESCAPE '\'`
	pattern := escapeLike(titlePrefix) + " (Parcela %/" + fmt.Sprint(installmentCount) + ")"
	res, err := r.db.ExecContext(ctx, query, ownerID, SpecialInstallment, installmentCount, pattern)
	if err != nil {
		return 0, fmt.Errorf("deleting installment group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrGroupNotFound
	}
	return int(n), nil
}

func (r *repository) CountByCouple(ctx context.Context, coupleID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE couple_id = $1`, coupleID).Scan(&n)
	return n, err
}

func (r *repository) CountByRule(ctx context.Context, ruleID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE recurring_rule_id = $1`, ruleID).Scan(&n)
	return n, err
}

func (r *repository) LinkCouple(ctx context.Context, ownerID, coupleID uuid.UUID) (int, error) {
	query := `UPDATE ledger_entries SET couple_id = $1, updated_at = NOW()
              WHERE owner_id = $2 AND scope = $3 AND couple_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, coupleID, ownerID, ScopeShared)
	if err != nil {
		return 0, fmt.Errorf("linking shared entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                      Entry
		category, rule, couple uuid.NullUUID
		count, index           sql.NullInt64
	)
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.Title,
		&e.Amount,
		&e.Kind,
		&e.Scope,
		&e.Status,
		&e.Date,
		&category,
		&e.SpecialType,
		&count,
		&index,
		&rule,
		&couple,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Date = calendar.Date(e.Date)
	e.CategoryID = fromNullUUID(category)
	e.RecurringRuleID = fromNullUUID(rule)
	e.CoupleID = fromNullUUID(couple)
	e.InstallmentCount = int(count.Int64)
	e.InstallmentIndex = int(index.Int64)
	return e, nil
}

func whereClause(f Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	v := f.Visibility
	switch {
	case v.Scope == ScopeShared && v.CoupleID != nil:
		conds = append(conds, fmt.Sprintf("scope = %s AND (couple_id = %s OR (owner_id = %s AND couple_id IS NULL))",
			arg(ScopeShared), arg(*v.CoupleID), arg(v.OwnerID)))
	case v.Scope == ScopeShared:
		conds = append(conds, fmt.Sprintf("scope = %s AND owner_id = %s AND couple_id IS NULL", arg(ScopeShared), arg(v.OwnerID)))
	default:
		conds = append(conds, fmt.Sprintf("scope = %s AND owner_id = %s", arg(ScopeIndividual), arg(v.OwnerID)))
	}

	if f.Kind != "" {
		conds = append(conds, "kind = "+arg(f.Kind))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.CategoryID != nil {
		conds = append(conds, "category_id = "+arg(*f.CategoryID))
	}
	if f.Period != nil {
		conds = append(conds, fmt.Sprintf("date >= %s AND date <= %s", arg(f.Period.Start()), arg(f.Period.End())))
	}
	if f.Through != nil {
		conds = append(conds, "date <= "+arg(*f.Through))
	}

	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func fromNullUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
