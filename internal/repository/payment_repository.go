package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/clientdesk/internal/models"
)

const paymentColumns = `id, client_id, plan_name, amount, currency, provider, status, created_at, completed_at, updated_at`

type PaymentRepository struct {
	db Querier
}

func NewPaymentRepository(db Querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepository) WithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (id, client_id, plan_name, amount, currency, provider, status, created_at, completed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var completedAt sql.NullTime
	if payment.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *payment.CompletedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, payment.ID, payment.ClientID, payment.PlanName, payment.Amount, payment.Currency,
		payment.Provider, payment.Status, payment.CreatedAt, completedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// TransitionStatus moves the payment from one status to another only if it is
// still in the expected status. It reports false when the precondition did not
// hold, which means a concurrent writer got there first.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from, to models.PaymentStatus, at time.Time) (bool, error) {
	var completedAt sql.NullTime
	if to.IsTerminal() {
		completedAt = sql.NullTime{Time: at, Valid: true}
	}
	const query = `
UPDATE payments SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, to, completedAt, at, id, from)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment status rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindRecentPending returns the newest pending payment of a client created at or after since.
func (r *PaymentRepository) FindRecentPending(ctx context.Context, clientID string, since time.Time) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
FROM payments WHERE client_id = ? AND status = ? AND created_at >= ?
ORDER BY created_at DESC LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, clientID, models.PaymentPending, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.list(ctx, query, limit)
}

func (r *PaymentRepository) ListByClient(ctx context.Context, clientID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE client_id = ? ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, clientID)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var completedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.ClientID, &p.PlanName, &p.Amount, &p.Currency, &p.Provider, &p.Status,
		&p.CreatedAt, &completedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return &p, nil
}
