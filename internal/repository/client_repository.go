package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/models"
)

type ClientRepository struct {
	db       Querier
	lockRows bool
	inTx     bool
}

func NewClientRepository(db Querier) *ClientRepository {
	return &ClientRepository{db: db}
}

// WithRowLocks makes GetByID take a row lock (SELECT ... FOR UPDATE) inside
// transactions. MySQL needs it: under REPEATABLE READ a plain read returns the
// transaction snapshot, not the row a concurrent writer just committed.
// SQLite has no FOR UPDATE and serialises writers anyway.
func (r *ClientRepository) WithRowLocks() *ClientRepository {
	return &ClientRepository{db: r.db, lockRows: true, inTx: r.inTx}
}

func (r *ClientRepository) WithTx(tx *sql.Tx) *ClientRepository {
	return &ClientRepository{db: tx, lockRows: r.lockRows, inTx: true}
}

func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	const query = `
INSERT INTO clients (id, email, first_name, last_name, created_at, updated_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	_, err := r.db.ExecContext(ctx, query, client.ID, client.Email, client.FirstName, client.LastName, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func clientSelectQuery(forUpdate bool) string {
	const query = `
SELECT id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), plan_name, plan_expires_at, assistant_id, created_at, updated_at
FROM clients WHERE id = ?`
	if forUpdate {
		return query + " FOR UPDATE"
	}
	return query
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx, clientSelectQuery(r.lockRows && r.inTx), id)
	var c models.Client
	var planName, assistantID sql.NullString
	var planExpires sql.NullTime
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &planName, &planExpires, &assistantID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	if planName.Valid && planExpires.Valid {
		c.Plan = &models.Plan{Name: models.PlanName(planName.String), ExpiresAt: planExpires.Time}
	}
	if assistantID.Valid {
		id := assistantID.String
		c.AssistantID = &id
	}
	return &c, nil
}

func (r *ClientRepository) SetPlan(ctx context.Context, clientID string, plan models.Plan, at time.Time) error {
	const query = `UPDATE clients SET plan_name = ?, plan_expires_at = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, plan.Name, plan.ExpiresAt, at, clientID); err != nil {
		return fmt.Errorf("set client plan: %w", err)
	}
	return nil
}

// AssignIfUnassigned links the client to assistantID unless it is already linked
// to a different assistant. Linking to the same assistant again counts as a hit.
func (r *ClientRepository) AssignIfUnassigned(ctx context.Context, clientID, assistantID string, at time.Time) (bool, error) {
	const query = `
UPDATE clients SET assistant_id = ?, updated_at = ?
WHERE id = ? AND (assistant_id IS NULL OR assistant_id = ?)`
	res, err := r.db.ExecContext(ctx, query, assistantID, at, clientID, assistantID)
	if err != nil {
		return false, fmt.Errorf("assign client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign client rows affected: %w", err)
	}
	return affected > 0, nil
}

// Reassign links the client to assistantID provided its current assistant is
// still from (nil meaning unassigned). It reports false when another writer
// changed the assignment in between.
func (r *ClientRepository) Reassign(ctx context.Context, clientID string, from *string, assistantID string, at time.Time) (bool, error) {
	const query = `
UPDATE clients SET assistant_id = ?, updated_at = ?
WHERE id = ? AND ((assistant_id IS NULL AND ? IS NULL) OR assistant_id = ?)`
	var prev sql.NullString
	if from != nil && *from != "" {
		prev = sql.NullString{String: *from, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, assistantID, at, clientID, prev, prev)
	if err != nil {
		return false, fmt.Errorf("reassign client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reassign rows affected: %w", err)
	}
	return affected > 0, nil
}
