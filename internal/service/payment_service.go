package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

type PaymentService struct {
	cfg         config.Config
	db          *sql.DB
	log         *slog.Logger
	payments    *repository.PaymentRepository
	clients     *repository.ClientRepository
	assignments *AssignmentService
	metrics     metrics.Recorder
	now         func() time.Time
}

type CreatePaymentInput struct {
	ClientID string
	PlanName string
	Amount   int64
}

// ReconcileResult summarises one processed payment confirmation.
type ReconcileResult struct {
	Payment *models.Payment `json:"payment"`
	// Activated is true when the payment completed and the client's plan was set.
	Activated bool `json:"activated"`
	// NewAssignment is true when this call linked the client to an assistant.
	NewAssignment bool              `json:"new_assignment"`
	Client        *models.Client    `json:"client,omitempty"`
	Assistant     *models.Assistant `json:"assistant,omitempty"`
}

func NewPaymentService(cfg config.Config, db *sql.DB, log *slog.Logger, payments *repository.PaymentRepository, clients *repository.ClientRepository, assignments *AssignmentService, recorder metrics.Recorder) *PaymentService {
	return &PaymentService{
		cfg:         cfg,
		db:          db,
		log:         log,
		payments:    payments,
		clients:     clients,
		assignments: assignments,
		metrics:     recorder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePayment records a checkout attempt. A pending payment of the same client
// created within the reuse window is returned instead of a new one; reused
// reports which happened.
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (payment *models.Payment, reused bool, err error) {
	plan, ok := models.ParsePlan(input.PlanName)
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown plan %q", ErrInvalidArgument, input.PlanName)
	}
	if input.Amount <= 0 {
		return nil, false, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		return nil, false, fmt.Errorf("%w: client id is required", ErrInvalidArgument)
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, false, storageError("get client", err)
	}
	if client == nil {
		return nil, false, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}

	now := s.now()
	if s.cfg.PendingPaymentReuse > 0 {
		existing, err := s.payments.FindRecentPending(ctx, clientID, now.Add(-s.cfg.PendingPaymentReuse))
		if err != nil {
			return nil, false, storageError("find pending payment", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	payment = &models.Payment{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		PlanName:  plan,
		Amount:    input.Amount,
		Currency:  s.cfg.PaymentCurrency,
		Provider:  s.cfg.PaymentProvider,
		Status:    models.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, false, storageError("record payment", err)
	}
	s.log.Info("payment created", "payment_id", payment.ID, "client_id", clientID, "plan", plan, "amount", payment.Amount)
	return payment, false, nil
}

// Reconcile applies a gateway confirmation to a payment exactly once. The status
// change, the plan activation and the assignment commit in one transaction, so
// a retry after any failure starts from a clean pending payment, and a retry
// after success returns ErrAlreadyProcessed.
//
// A completed payment whose client no longer exists rolls back with
// ErrNotFound and stays pending. Retrying it keeps returning ErrNotFound until
// the client row is restored; the charge needs manual follow-up.
//
// Canceled payments still settle: the gateway may confirm a checkout after the
// client abandoned it, and the money has moved either way.
func (s *PaymentService) Reconcile(ctx context.Context, paymentID, terminalStatus string) (*ReconcileResult, error) {
	start := time.Now()
	result, err := s.reconcile(ctx, paymentID, terminalStatus)
	s.metrics.RecordReconcile(reconcileOutcome(result, err), time.Since(start))
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			s.log.Info("payment already processed", "payment_id", paymentID, "status", terminalStatus)
		}
		return nil, err
	}

	attrs := []any{"payment_id", result.Payment.ID, "status", result.Payment.Status, "new_assignment", result.NewAssignment}
	if result.Assistant != nil {
		attrs = append(attrs, "assistant_id", result.Assistant.ID)
	}
	s.log.Info("payment reconciled", attrs...)
	return result, nil
}

func (s *PaymentService) reconcile(ctx context.Context, paymentID, terminalStatus string) (*ReconcileResult, error) {
	status, ok := models.ParsePaymentStatus(terminalStatus)
	if !ok || !status.IsTerminal() {
		return nil, fmt.Errorf("%w: status must be %q or %q, got %q", ErrInvalidArgument, models.PaymentCompleted, models.PaymentFailed, terminalStatus)
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidArgument)
	}

	result := &ReconcileResult{}
	err := database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		payment, err := s.payments.WithTx(tx).GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
		}
		if payment.Status.IsTerminal() {
			return fmt.Errorf("%w: payment %s is already %s", ErrAlreadyProcessed, paymentID, payment.Status)
		}
		if !payment.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: payment %s is %s", ErrConflict, paymentID, payment.Status)
		}
		return s.settleTx(ctx, tx, payment, status, result)
	})
	if err != nil {
		return nil, storageError("reconcile payment", err)
	}
	return result, nil
}

// settleTx moves payment from the status it was read with to status. Losing
// the compare-and-set to another settlement is reported as ErrAlreadyProcessed.
func (s *PaymentService) settleTx(ctx context.Context, tx *sql.Tx, payment *models.Payment, status models.PaymentStatus, result *ReconcileResult) error {
	now := s.now()
	ok, err := s.payments.WithTx(tx).TransitionStatus(ctx, payment.ID, payment.Status, status, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment %s was settled concurrently", ErrAlreadyProcessed, payment.ID)
	}
	payment.Status = status
	payment.CompletedAt = &now
	payment.UpdatedAt = now
	result.Payment = payment

	if status != models.PaymentCompleted {
		return nil
	}
	return s.activateTx(ctx, tx, payment, now, result)
}

// activateTx grants the paid plan and, for clients without an assistant, links
// the least loaded one. An existing assistant is never replaced here.
func (s *PaymentService) activateTx(ctx context.Context, tx *sql.Tx, payment *models.Payment, now time.Time, result *ReconcileResult) error {
	clients := s.clients.WithTx(tx)
	client, err := clients.GetByID(ctx, payment.ClientID)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("%w: client %s of payment %s", ErrNotFound, payment.ClientID, payment.ID)
	}

	plan := models.Plan{Name: payment.PlanName, ExpiresAt: now.AddDate(0, 0, s.cfg.PlanDurationDays)}
	if err := clients.SetPlan(ctx, client.ID, plan, now); err != nil {
		return err
	}
	client.Plan = &plan
	client.UpdatedAt = now
	result.Activated = true
	result.Client = client

	if client.HasAssistant() {
		result.Assistant, err = s.assignments.assistants.WithTx(tx).GetByID(ctx, *client.AssistantID)
		return err
	}

	updated, assistant, err := s.assignments.assignLeastLoadedTx(ctx, tx, client.ID)
	switch {
	case errors.Is(err, ErrServiceUnavailable):
		s.log.Warn("no assistant available for activated client", "client_id", client.ID, "payment_id", payment.ID)
		return nil
	case errors.Is(err, ErrConflict):
		// Linked by a concurrent writer after our read; keep that assistant.
		current, err := clients.GetByID(ctx, client.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.HasAssistant() {
			return assignmentConflict(current, client.ID)
		}
		result.Client = current
		result.Assistant, err = s.assignments.assistants.WithTx(tx).GetByID(ctx, *current.AssistantID)
		return err
	case err != nil:
		return err
	}
	result.Client = updated
	result.Assistant = assistant
	result.NewAssignment = true
	return nil
}

// MarkProcessing records that the gateway accepted the payment for processing.
func (s *PaymentService) MarkProcessing(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.transition(ctx, paymentID, models.PaymentProcessing)
}

// Cancel abandons a pending checkout. A later gateway confirmation still settles it.
func (s *PaymentService) Cancel(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.transition(ctx, paymentID, models.PaymentCanceled)
}

func (s *PaymentService) transition(ctx context.Context, paymentID string, to models.PaymentStatus) (*models.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidArgument)
	}
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, storageError("get payment", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if payment.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: payment %s is already %s", ErrAlreadyProcessed, paymentID, payment.Status)
	}
	if !payment.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: payment %s cannot move from %s to %s", ErrConflict, paymentID, payment.Status, to)
	}

	now := s.now()
	ok, err := s.payments.TransitionStatus(ctx, paymentID, payment.Status, to, now)
	if err != nil {
		return nil, storageError("update payment status", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s changed concurrently", ErrConflict, paymentID)
	}
	payment.Status = to
	payment.UpdatedAt = now
	s.log.Info("payment status changed", "payment_id", paymentID, "status", to)
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, storageError("get payment", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	return payment, nil
}

// List returns the newest payments first. A non-positive limit means 100.
func (s *PaymentService) List(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	payments, err := s.payments.List(ctx, limit)
	if err != nil {
		return nil, storageError("list payments", err)
	}
	return payments, nil
}

func (s *PaymentService) ListByClient(ctx context.Context, clientID string) ([]models.Payment, error) {
	payments, err := s.payments.ListByClient(ctx, clientID)
	if err != nil {
		return nil, storageError("list client payments", err)
	}
	return payments, nil
}

func reconcileOutcome(result *ReconcileResult, err error) string {
	switch {
	case err == nil && result != nil && result.Payment != nil:
		return string(result.Payment.Status)
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
