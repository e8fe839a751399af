package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

const (
	DefaultConversationTitle = "New Conversation"
	MaxMessageLength         = 5000
)

type ConversationService struct {
	db            *sql.DB
	log           *slog.Logger
	conversations *repository.ConversationRepository
	clients       *repository.ClientRepository
	assistants    *repository.AssistantRepository
	metrics       metrics.Recorder
	now           func() time.Time
}

func NewConversationService(db *sql.DB, log *slog.Logger, conversations *repository.ConversationRepository, clients *repository.ClientRepository, assistants *repository.AssistantRepository, recorder metrics.Recorder) *ConversationService {
	return &ConversationService{
		db:            db,
		log:           log,
		conversations: conversations,
		clients:       clients,
		assistants:    assistants,
		metrics:       recorder,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the single conversation between the client and the
// assistant, creating it on first contact. created reports whether this call
// inserted it.
func (s *ConversationService) GetOrCreate(ctx context.Context, clientID, assistantID string) (*models.Conversation, bool, error) {
	clientID, assistantID = strings.TrimSpace(clientID), strings.TrimSpace(assistantID)
	if clientID == "" || assistantID == "" {
		return nil, false, fmt.Errorf("%w: client id and assistant id are required", ErrInvalidArgument)
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, false, storageError("get client", err)
	}
	if client == nil {
		return nil, false, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	assistant, err := s.assistants.GetByID(ctx, assistantID)
	if err != nil {
		return nil, false, storageError("get assistant", err)
	}
	if assistant == nil {
		return nil, false, fmt.Errorf("%w: assistant %s", ErrNotFound, assistantID)
	}

	existing, err := s.conversations.FindByPair(ctx, clientID, assistantID)
	if err != nil {
		return nil, false, storageError("find conversation", err)
	}
	if existing != nil {
		return s.loaded(ctx, existing)
	}
	return s.create(ctx, clientID, assistantID)
}

// create inserts the conversation and both membership links. Losing the
// first-contact race to a concurrent caller returns the winner's record.
func (s *ConversationService) create(ctx context.Context, clientID, assistantID string) (*models.Conversation, bool, error) {
	now := s.now()
	conv := &models.Conversation{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		AssistantID:    assistantID,
		Title:          DefaultConversationTitle,
		Messages:       []models.Message{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		conversations := s.conversations.WithTx(tx)
		if err := conversations.Create(ctx, conv); err != nil {
			return err
		}
		if err := conversations.LinkClient(ctx, clientID, conv.ID); err != nil {
			return err
		}
		return conversations.LinkAssistant(ctx, assistantID, conv.ID)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		winner, err := s.conversations.FindByPair(ctx, clientID, assistantID)
		if err != nil {
			return nil, false, storageError("find conversation", err)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("%w: conversation for %s/%s vanished after duplicate insert", ErrStorageFailure, clientID, assistantID)
		}
		return s.loaded(ctx, winner)
	}
	if err != nil {
		return nil, false, storageError("create conversation", err)
	}

	s.metrics.RecordConversation(true)
	s.log.Info("conversation created", "conversation_id", conv.ID, "client_id", clientID, "assistant_id", assistantID)
	return conv, true, nil
}

func (s *ConversationService) loaded(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	messages, err := s.conversations.Messages(ctx, conv.ID)
	if err != nil {
		return nil, false, storageError("list messages", err)
	}
	conv.Messages = messages
	s.metrics.RecordConversation(false)
	return conv, false, nil
}

// AppendMessage adds one timestamped entry to the conversation. The existence
// check and the insert share a transaction, so an unknown id leaves no trace.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID, role, text string) (*models.Message, error) {
	parsedRole, ok := models.ParseMessageRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: role must be %q or %q, got %q", ErrInvalidArgument, models.RoleClient, models.RoleAssistant, role)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidArgument, MaxMessageLength)
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Role:           parsedRole,
		Text:           text,
		CreatedAt:      s.now(),
	}
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		conversations := s.conversations.WithTx(tx)
		ok, err := conversations.Touch(ctx, conversationID, msg.CreatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return conversations.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, storageError("append message", err)
	}

	s.metrics.RecordMessage(string(parsedRole))
	s.log.Debug("message appended", "conversation_id", conversationID, "role", parsedRole, "message_id", msg.ID)
	return msg, nil
}

// Get returns the conversation with its messages in append order.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, storageError("get conversation", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	conv.Messages, err = s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, storageError("list messages", err)
	}
	return conv, nil
}

// ListForClient returns the client's conversations, most recently active first.
func (s *ConversationService) ListForClient(ctx context.Context, clientID string) ([]models.Conversation, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, storageError("get client", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	conversations, err := s.conversations.ListByClient(ctx, clientID)
	if err != nil {
		return nil, storageError("list client conversations", err)
	}
	return conversations, nil
}

func (s *ConversationService) ListForAssistant(ctx context.Context, assistantID string) ([]models.Conversation, error) {
	assistant, err := s.assistants.GetByID(ctx, assistantID)
	if err != nil {
		return nil, storageError("get assistant", err)
	}
	if assistant == nil {
		return nil, fmt.Errorf("%w: assistant %s", ErrNotFound, assistantID)
	}
	conversations, err := s.conversations.ListByAssistant(ctx, assistantID)
	if err != nil {
		return nil, storageError("list assistant conversations", err)
	}
	return conversations, nil
}
