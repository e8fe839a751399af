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

const conversationColumns = `id, client_id, assistant_id, title, created_at, last_activity_at`

type ConversationRepository struct {
	db Querier
}

func NewConversationRepository(db Querier) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) WithTx(tx *sql.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Create inserts the conversation. ErrDuplicate means a conversation for the
// same (client, assistant) pair already exists.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	const query = `
INSERT INTO conversations (id, client_id, assistant_id, title, created_at, last_activity_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, conv.ID, conv.ClientID, conv.AssistantID, conv.Title, conv.CreatedAt, conv.LastActivityAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) LinkClient(ctx context.Context, clientID, conversationID string) error {
	const query = `INSERT INTO client_conversations (client_id, conversation_id) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, clientID, conversationID); err != nil && !database.IsDuplicateKey(err) {
		return fmt.Errorf("link client conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) LinkAssistant(ctx context.Context, assistantID, conversationID string) error {
	const query = `INSERT INTO assistant_conversations (assistant_id, conversation_id) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, assistantID, conversationID); err != nil && !database.IsDuplicateKey(err) {
		return fmt.Errorf("link assistant conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) FindByPair(ctx context.Context, clientID, assistantID string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE client_id = ? AND assistant_id = ?`
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, clientID, assistantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// Touch bumps last_activity_at and reports whether the conversation exists.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE conversations SET last_activity_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("touch conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch rows affected: %w", err)
	}
	return affected > 0, nil
}

// AppendMessage inserts one entry; existing entries are never rewritten.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	const query = `
INSERT INTO conversation_messages (conversation_id, role, body, created_at)
VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, msg.ConversationID, msg.Role, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("message last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const query = `
SELECT id, conversation_id, role, body, created_at
FROM conversation_messages WHERE conversation_id = ?
ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ConversationRepository) ListByClient(ctx context.Context, clientID string) ([]models.Conversation, error) {
	query := `
SELECT c.id, c.client_id, c.assistant_id, c.title, c.created_at, c.last_activity_at
FROM client_conversations cc
JOIN conversations c ON c.id = cc.conversation_id
WHERE cc.client_id = ?
ORDER BY c.last_activity_at DESC, c.id ASC`
	return r.list(ctx, query, clientID)
}

func (r *ConversationRepository) ListByAssistant(ctx context.Context, assistantID string) ([]models.Conversation, error) {
	query := `
SELECT c.id, c.client_id, c.assistant_id, c.title, c.created_at, c.last_activity_at
FROM assistant_conversations ac
JOIN conversations c ON c.id = ac.conversation_id
WHERE ac.assistant_id = ?
ORDER BY c.last_activity_at DESC, c.id ASC`
	return r.list(ctx, query, assistantID)
}

func (r *ConversationRepository) list(ctx context.Context, query string, args ...any) ([]models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.ClientID, &c.AssistantID, &c.Title, &c.CreatedAt, &c.LastActivityAt); err != nil {
		return nil, err
	}
	return &c, nil
}
