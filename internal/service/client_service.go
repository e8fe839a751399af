package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

type ClientService struct {
	log     *slog.Logger
	clients *repository.ClientRepository
	now     func() time.Time
}

type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
}

func NewClientService(log *slog.Logger, clients *repository.ClientRepository) *ClientService {
	return &ClientService{
		log:     log,
		clients: clients,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ClientService) Register(ctx context.Context, input RegisterInput) (*models.Client, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	client := &models.Client{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: client with email %s already exists", ErrConflict, email)
		}
		return nil, storageError("create client", err)
	}
	s.log.Info("client registered", "client_id", client.ID)
	return client, nil
}

func (s *ClientService) Get(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, storageError("get client", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	return client, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email %q", ErrInvalidArgument, raw)
	}
	return email, nil
}
