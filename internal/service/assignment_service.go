package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/clientdesk/internal/balancer"
	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

// AssignmentPolicy decides what happens when the client is already linked to an assistant.
type AssignmentPolicy string

const (
	// PolicyPreserve keeps an existing assistant. Linking to a different one is a conflict.
	// Used by explicit assignment and by completed payments.
	PolicyPreserve AssignmentPolicy = "preserve"

	// PolicyReassign moves the client to the new assistant and drops it from the old
	// assistant's client set. Used by subscription activation.
	PolicyReassign AssignmentPolicy = "reassign"
)

type AssignmentService struct {
	cfg          config.Config
	db           *sql.DB
	log          *slog.Logger
	clients      *repository.ClientRepository
	assistants   *repository.AssistantRepository
	leastLoaded  balancer.Selector
	subscription balancer.Selector
	metrics      metrics.Recorder
	now          func() time.Time
}

// SubscriptionResult is the outcome of ActivateSubscription.
type SubscriptionResult struct {
	Client    *models.Client    `json:"client"`
	Assistant *models.Assistant `json:"assistant"`
}

func NewAssignmentService(cfg config.Config, db *sql.DB, log *slog.Logger, clients *repository.ClientRepository, assistants *repository.AssistantRepository, recorder metrics.Recorder) *AssignmentService {
	return &AssignmentService{
		cfg:          cfg,
		db:           db,
		log:          log,
		clients:      clients,
		assistants:   assistants,
		leastLoaded:  balancer.LeastLoaded{},
		subscription: balancer.NewRandomUnderCeiling(cfg.MaxClientsPerAssistant),
		metrics:      recorder,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Assign links the client to the assistant in both directions. Repeating the
// same assignment is a no-op; assigning an already assigned client elsewhere
// fails with ErrConflict.
func (s *AssignmentService) Assign(ctx context.Context, clientID, assistantID string) (*models.Client, error) {
	clientID, assistantID = strings.TrimSpace(clientID), strings.TrimSpace(assistantID)
	if clientID == "" || assistantID == "" {
		return nil, fmt.Errorf("%w: client id and assistant id are required", ErrInvalidArgument)
	}

	var client *models.Client
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		client, _, err = s.linkTx(ctx, tx, clientID, assistantID, PolicyPreserve)
		return err
	})
	s.metrics.RecordAssignment(string(PolicyPreserve), resultLabel(err))
	if err != nil {
		return nil, storageError("assign", err)
	}

	s.log.Info("client assigned", "client_id", clientID, "assistant_id", assistantID)
	return client, nil
}

// ActivateSubscription sets the client's plan for one month and links it to a
// random assistant below the client ceiling, in one transaction.
func (s *AssignmentService) ActivateSubscription(ctx context.Context, clientID, planName string) (*SubscriptionResult, error) {
	plan, ok := models.ParsePlan(planName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q, valid plans are %v", ErrInvalidArgument, planName, models.Plans())
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidArgument)
	}

	now := s.now()
	expiresAt := now.AddDate(0, 1, 0)

	var result SubscriptionResult
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		clients := s.clients.WithTx(tx)
		client, err := clients.GetByID(ctx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("%w: client %s", ErrNotFound, clientID)
		}

		roster, err := s.assistants.WithTx(tx).Roster(ctx)
		if err != nil {
			return err
		}
		pick, err := s.subscription.Select(roster)
		if err != nil {
			if errors.Is(err, balancer.ErrNoCapacity) {
				return fmt.Errorf("%w: no assistants available at the moment", ErrServiceUnavailable)
			}
			return err
		}

		if err := clients.SetPlan(ctx, clientID, models.Plan{Name: plan, ExpiresAt: expiresAt}, now); err != nil {
			return err
		}
		result.Client, result.Assistant, err = s.linkTx(ctx, tx, clientID, pick.AssistantID, PolicyReassign)
		return err
	})
	s.metrics.RecordAssignment(string(PolicyReassign), resultLabel(err))
	if err != nil {
		return nil, storageError("activate subscription", err)
	}

	s.log.Info("subscription activated", "client_id", clientID, "plan", plan, "assistant_id", result.Assistant.ID, "expires_at", expiresAt)
	return &result, nil
}

// assignLeastLoadedTx links an unassigned client to the least loaded assistant
// inside the caller's transaction.
func (s *AssignmentService) assignLeastLoadedTx(ctx context.Context, tx *sql.Tx, clientID string) (*models.Client, *models.Assistant, error) {
	roster, err := s.assistants.WithTx(tx).Roster(ctx)
	if err != nil {
		return nil, nil, err
	}
	pick, err := s.leastLoaded.Select(roster)
	if err != nil {
		if errors.Is(err, balancer.ErrNoCapacity) {
			return nil, nil, fmt.Errorf("%w: no assistants registered", ErrServiceUnavailable)
		}
		return nil, nil, err
	}
	client, assistant, err := s.linkTx(ctx, tx, clientID, pick.AssistantID, PolicyPreserve)
	s.metrics.RecordAssignment(string(PolicyPreserve), resultLabel(err))
	return client, assistant, err
}

// linkTx writes both sides of the assignment. Nothing here commits; the
// caller's transaction makes the two writes land together or not at all.
func (s *AssignmentService) linkTx(ctx context.Context, tx *sql.Tx, clientID, assistantID string, policy AssignmentPolicy) (*models.Client, *models.Assistant, error) {
	clients := s.clients.WithTx(tx)
	assistants := s.assistants.WithTx(tx)
	now := s.now()

	assistant, err := assistants.GetByID(ctx, assistantID)
	if err != nil {
		return nil, nil, err
	}
	if assistant == nil {
		return nil, nil, fmt.Errorf("%w: assistant %s", ErrNotFound, assistantID)
	}

	switch policy {
	case PolicyReassign:
		client, err := clients.GetByID(ctx, clientID)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
		}
		ok, err := clients.Reassign(ctx, clientID, client.AssistantID, assistantID, now)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("%w: client %s was reassigned concurrently", ErrConflict, clientID)
		}
		if client.HasAssistant() && *client.AssistantID != assistantID {
			if err := assistants.RemoveClient(ctx, *client.AssistantID, clientID); err != nil {
				return nil, nil, err
			}
		}
	default:
		ok, err := clients.AssignIfUnassigned(ctx, clientID, assistantID, now)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			client, err := clients.GetByID(ctx, clientID)
			if err != nil {
				return nil, nil, err
			}
			return nil, nil, assignmentConflict(client, clientID)
		}
	}

	if _, err := assistants.AddClient(ctx, assistantID, clientID, now); err != nil {
		return nil, nil, err
	}

	client, err := clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	return client, assistant, nil
}

// assignmentConflict describes a lost AssignIfUnassigned race. Without row
// locks the re-read may predate the winning write, so the assistant can be
// missing from the snapshot.
func assignmentConflict(client *models.Client, clientID string) error {
	switch {
	case client == nil:
		return fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	case client.HasAssistant():
		return fmt.Errorf("%w: client %s is already assigned to assistant %s", ErrConflict, clientID, *client.AssistantID)
	default:
		return fmt.Errorf("%w: client %s was assigned concurrently", ErrConflict, clientID)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServiceUnavailable):
		return "no_capacity"
	default:
		return "error"
	}
}
