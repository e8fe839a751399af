package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/database/dbtest"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/repository"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db  *sql.DB
	now time.Time

	clientRepo       *repository.ClientRepository
	assistantRepo    *repository.AssistantRepository
	paymentRepo      *repository.PaymentRepository
	conversationRepo *repository.ConversationRepository

	clients       *ClientService
	assistants    *AssistantService
	assignments   *AssignmentService
	payments      *PaymentService
	conversations *ConversationService

	seeded int
}

func testConfig() config.Config {
	return config.Config{
		DBDriver:               config.DriverSQLite,
		PlanDurationDays:       30,
		MaxClientsPerAssistant: 10,
		PendingPaymentReuse:    30 * time.Minute,
		PaymentCurrency:        "GBP",
		PaymentProvider:        "stripe",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRecorder(t, metrics.NewNop())
}

func newFixtureWithRecorder(t *testing.T, recorder metrics.Recorder) *fixture {
	t.Helper()
	db := dbtest.NewSQLite(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()

	f := &fixture{
		db:               db,
		now:              baseTime,
		clientRepo:       repository.NewClientRepository(db),
		assistantRepo:    repository.NewAssistantRepository(db),
		paymentRepo:      repository.NewPaymentRepository(db),
		conversationRepo: repository.NewConversationRepository(db),
	}
	clock := func() time.Time { return f.now }

	f.clients = NewClientService(log, f.clientRepo)
	f.clients.now = clock
	f.assistants = NewAssistantService(log, f.assistantRepo)
	f.assistants.now = clock
	f.assignments = NewAssignmentService(cfg, db, log, f.clientRepo, f.assistantRepo, recorder)
	f.assignments.now = clock
	f.payments = NewPaymentService(cfg, db, log, f.paymentRepo, f.clientRepo, f.assignments, recorder)
	f.payments.now = clock
	f.conversations = NewConversationService(db, log, f.conversationRepo, f.clientRepo, f.assistantRepo, recorder)
	f.conversations.now = clock
	return f
}

func (f *fixture) client(t *testing.T, name string) *models.Client {
	t.Helper()
	c, err := f.clients.Register(context.Background(), RegisterInput{Email: name + "@example.com", FirstName: name})
	require.NoError(t, err)
	return c
}

// assistant registers an assistant whose roster position follows every
// assistant seeded before it.
func (f *fixture) assistant(t *testing.T, name string) *models.Assistant {
	t.Helper()
	f.seeded++
	a := &models.Assistant{
		ID:        fmt.Sprintf("asst-%02d-%s", f.seeded, name),
		Email:     name + "@assistants.example.com",
		FirstName: name,
		CreatedAt: baseTime.Add(time.Duration(f.seeded) * time.Second),
	}
	require.NoError(t, f.assistantRepo.Create(context.Background(), a))
	return a
}

func (f *fixture) payment(t *testing.T, clientID string, plan models.PlanName) *models.Payment {
	t.Helper()
	p, reused, err := f.payments.CreatePayment(context.Background(), CreatePaymentInput{ClientID: clientID, PlanName: string(plan), Amount: 4900})
	require.NoError(t, err)
	require.False(t, reused)
	return p
}

func (f *fixture) reload(t *testing.T, clientID string) *models.Client {
	t.Helper()
	c, err := f.clientRepo.GetByID(context.Background(), clientID)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}
