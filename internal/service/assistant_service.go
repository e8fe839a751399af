package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

type AssistantService struct {
	log        *slog.Logger
	assistants *repository.AssistantRepository
	now        func() time.Time
}

func NewAssistantService(log *slog.Logger, assistants *repository.AssistantRepository) *AssistantService {
	return &AssistantService{
		log:        log,
		assistants: assistants,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *AssistantService) Register(ctx context.Context, input RegisterInput) (*models.Assistant, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	assistant := &models.Assistant{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		CreatedAt: s.now(),
	}
	if err := s.assistants.Create(ctx, assistant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: assistant with email %s already exists", ErrConflict, email)
		}
		return nil, storageError("create assistant", err)
	}
	s.log.Info("assistant registered", "assistant_id", assistant.ID)
	return assistant, nil
}

func (s *AssistantService) Get(ctx context.Context, assistantID string) (*models.Assistant, error) {
	assistant, err := s.assistants.GetByID(ctx, assistantID)
	if err != nil {
		return nil, storageError("get assistant", err)
	}
	if assistant == nil {
		return nil, fmt.Errorf("%w: assistant %s", ErrNotFound, assistantID)
	}
	return assistant, nil
}

// Roster lists every assistant with its current client count in roster order.
func (s *AssistantService) Roster(ctx context.Context) ([]models.AssistantLoad, error) {
	roster, err := s.assistants.Roster(ctx)
	if err != nil {
		return nil, storageError("list roster", err)
	}
	if roster == nil {
		roster = []models.AssistantLoad{}
	}
	return roster, nil
}

// Clients returns the ids in the assistant's client set.
func (s *AssistantService) Clients(ctx context.Context, assistantID string) ([]string, error) {
	if _, err := s.Get(ctx, assistantID); err != nil {
		return nil, err
	}
	ids, err := s.assistants.ClientIDs(ctx, assistantID)
	if err != nil {
		return nil, storageError("list assistant clients", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
