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

type AssistantRepository struct {
	db Querier
}

func NewAssistantRepository(db Querier) *AssistantRepository {
	return &AssistantRepository{db: db}
}

func (r *AssistantRepository) WithTx(tx *sql.Tx) *AssistantRepository {
	return &AssistantRepository{db: tx}
}

func (r *AssistantRepository) Create(ctx context.Context, assistant *models.Assistant) error {
	const query = `
INSERT INTO assistants (id, email, first_name, last_name, created_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	_, err := r.db.ExecContext(ctx, query, assistant.ID, assistant.Email, assistant.FirstName, assistant.LastName, assistant.CreatedAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert assistant: %w", err)
	}
	return nil
}

func (r *AssistantRepository) GetByID(ctx context.Context, id string) (*models.Assistant, error) {
	const query = `
SELECT id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), created_at
FROM assistants WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var a models.Assistant
	if err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan assistant: %w", err)
	}
	return &a, nil
}

// Roster returns every assistant with its client count, oldest assistant first.
// The order is stable so that load balancing ties resolve the same way every time.
func (r *AssistantRepository) Roster(ctx context.Context) ([]models.AssistantLoad, error) {
	const query = `
SELECT a.id, COUNT(ac.client_id)
FROM assistants a
LEFT JOIN assistant_clients ac ON ac.assistant_id = a.id
GROUP BY a.id, a.created_at
ORDER BY a.created_at ASC, a.id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var roster []models.AssistantLoad
	for rows.Next() {
		var load models.AssistantLoad
		if err := rows.Scan(&load.AssistantID, &load.ClientCount); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		roster = append(roster, load)
	}
	return roster, rows.Err()
}

// AddClient inserts clientID into the assistant's client set. It reports false
// when the client was already a member.
func (r *AssistantRepository) AddClient(ctx context.Context, assistantID, clientID string, at time.Time) (bool, error) {
	const query = `INSERT INTO assistant_clients (assistant_id, client_id, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, assistantID, clientID, at); err != nil {
		if database.IsDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("add assistant client: %w", err)
	}
	return true, nil
}

func (r *AssistantRepository) RemoveClient(ctx context.Context, assistantID, clientID string) error {
	const query = `DELETE FROM assistant_clients WHERE assistant_id = ? AND client_id = ?`
	if _, err := r.db.ExecContext(ctx, query, assistantID, clientID); err != nil {
		return fmt.Errorf("remove assistant client: %w", err)
	}
	return nil
}

func (r *AssistantRepository) ClientIDs(ctx context.Context, assistantID string) ([]string, error) {
	const query = `SELECT client_id FROM assistant_clients WHERE assistant_id = ? ORDER BY created_at ASC, client_id ASC`
	rows, err := r.db.QueryContext(ctx, query, assistantID)
	if err != nil {
		return nil, fmt.Errorf("list assistant clients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assistant client: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
