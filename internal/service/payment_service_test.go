package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/metrics"
	"github.com/digkill/clientdesk/internal/models"
)

func TestReconcileCompletedActivatesPlanAndAssignsLeastLoaded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	busy := f.assistant(t, "busy")
	idle := f.assistant(t, "idle")
	existing := f.client(t, "existing")
	_, err := f.assignments.Assign(ctx, existing.ID, busy.ID)
	require.NoError(t, err)

	client := f.client(t, "alice")
	payment := f.payment(t, client.ID, models.PlanProfessional)

	f.now = baseTime.Add(5 * time.Minute)
	result, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentCompleted, result.Payment.Status)
	assert.True(t, result.Activated)
	assert.True(t, result.NewAssignment)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, idle.ID, result.Assistant.ID)

	stored := f.reload(t, client.ID)
	require.NotNil(t, stored.AssistantID)
	assert.Equal(t, idle.ID, *stored.AssistantID)
	require.NotNil(t, stored.Plan)
	assert.Equal(t, models.PlanProfessional, stored.Plan.Name)
	assert.True(t, stored.Plan.ExpiresAt.Equal(f.now.AddDate(0, 0, 30)))

	ids, err := f.assistantRepo.ClientIDs(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{client.ID}, ids)

	got, err := f.payments.Get(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(f.now))
}

func TestReconcileTwiceIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assistant(t, "a")
	client := f.client(t, "bob")
	payment := f.payment(t, client.ID, models.PlanStarter)

	f.now = baseTime.Add(time.Minute)
	_, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)
	first, err := f.payments.Get(ctx, payment.ID)
	require.NoError(t, err)

	f.now = baseTime.Add(time.Hour)
	_, err = f.payments.Reconcile(ctx, payment.ID, "completed")
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = f.payments.Reconcile(ctx, payment.ID, "failed")
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	second, err := f.payments.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, second.Status)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	stored := f.reload(t, client.ID)
	assert.True(t, stored.Plan.ExpiresAt.Equal(baseTime.Add(time.Minute).AddDate(0, 0, 30)), "plan must not be extended twice")
}

func TestReconcileKeepsExistingAssistant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loaded := f.assistant(t, "loaded")
	f.assistant(t, "empty")
	client := f.client(t, "carol")
	for _, name := range []string{"x", "y"} {
		other := f.client(t, name)
		_, err := f.assignments.Assign(ctx, other.ID, loaded.ID)
		require.NoError(t, err)
	}
	_, err := f.assignments.Assign(ctx, client.ID, loaded.ID)
	require.NoError(t, err)

	payment := f.payment(t, client.ID, models.PlanElite)
	result, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)

	assert.False(t, result.NewAssignment)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, loaded.ID, result.Assistant.ID)
	assert.Equal(t, loaded.ID, *f.reload(t, client.ID).AssistantID)
}

func TestReconcileFailedLeavesClientUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assistant(t, "a")
	client := f.client(t, "dave")
	payment := f.payment(t, client.ID, models.PlanStarter)

	result, err := f.payments.Reconcile(ctx, payment.ID, "failed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, result.Payment.Status)
	assert.False(t, result.Activated)
	assert.Nil(t, result.Assistant)

	stored := f.reload(t, client.ID)
	assert.Nil(t, stored.Plan)
	assert.Nil(t, stored.AssistantID)
}

func TestReconcileWithoutAssistantsStillActivatesPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "erin")
	payment := f.payment(t, client.ID, models.PlanStarter)

	result, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.False(t, result.NewAssignment)
	assert.Nil(t, result.Assistant)

	stored := f.reload(t, client.ID)
	require.NotNil(t, stored.Plan)
	assert.Nil(t, stored.AssistantID)
}

func TestReconcileRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, status := range []string{"pending", "processing", "canceled", "refunded", "", " FAILED ", "Completed"} {
		_, err := f.payments.Reconcile(ctx, "any", status)
		assert.ErrorIs(t, err, ErrInvalidArgument, status)
	}

	_, err := f.payments.Reconcile(ctx, "missing", "completed")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileMissingClientRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	orphan := &models.Payment{
		ID: "orphan", ClientID: "ghost", PlanName: models.PlanStarter, Amount: 100, Currency: "GBP",
		Provider: "stripe", Status: models.PaymentPending, CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, f.paymentRepo.Create(ctx, orphan))

	_, err := f.payments.Reconcile(ctx, orphan.ID, "completed")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.payments.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.Status, "the status change must roll back with the rest")
	assert.Nil(t, got.CompletedAt)
}

func TestReconcileConcurrentCallsTransitionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assistant(t, "a")
	f.assistant(t, "b")
	client := f.client(t, "frank")
	payment := f.payment(t, client.ID, models.PlanProfessional)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.payments.Reconcile(ctx, payment.ID, "completed")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)

	roster, err := f.assistantRepo.Roster(ctx)
	require.NoError(t, err)
	var total int
	for _, load := range roster {
		total += load.ClientCount
	}
	assert.Equal(t, 1, total, "client must be linked exactly once")
}

func TestProcessingPaymentCanBeReconciled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "gina")
	payment := f.payment(t, client.ID, models.PlanStarter)

	got, err := f.payments.MarkProcessing(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, got.Status)

	_, err = f.payments.MarkProcessing(ctx, payment.ID)
	require.ErrorIs(t, err, ErrConflict)
	_, err = f.payments.Cancel(ctx, payment.ID)
	require.ErrorIs(t, err, ErrConflict, "processing payments cannot be canceled")

	result, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, result.Payment.Status)

	_, err = f.payments.MarkProcessing(ctx, payment.ID)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestCanceledPaymentIsSettledByLateConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	client := f.client(t, "hank")
	payment := f.payment(t, client.ID, models.PlanStarter)

	got, err := f.payments.Cancel(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCanceled, got.Status)

	_, err = f.payments.MarkProcessing(ctx, payment.ID)
	require.ErrorIs(t, err, ErrConflict)
	_, err = f.payments.Cancel(ctx, payment.ID)
	require.ErrorIs(t, err, ErrConflict)

	result, err := f.payments.Reconcile(ctx, payment.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, result.Payment.Status)
	assert.True(t, result.Activated)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, a.ID, result.Assistant.ID)

	stored := f.reload(t, client.ID)
	require.NotNil(t, stored.Plan)
	assert.Equal(t, models.PlanStarter, stored.Plan.Name)

	_, err = f.payments.Reconcile(ctx, payment.ID, "completed")
	require.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestCanceledPaymentCanFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "hope")
	payment := f.payment(t, client.ID, models.PlanStarter)

	_, err := f.payments.Cancel(ctx, payment.ID)
	require.NoError(t, err)

	result, err := f.payments.Reconcile(ctx, payment.ID, "failed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, result.Payment.Status)
	assert.Nil(t, f.reload(t, client.ID).Plan)
}

// A settlement working from a stale read must lose the compare-and-set and
// leave the winner's outcome alone.
func TestSettleStalePaymentIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assistant(t, "a")
	client := f.client(t, "iris")
	payment := f.payment(t, client.ID, models.PlanElite)

	stale, err := f.paymentRepo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	ok, err := f.paymentRepo.TransitionStatus(ctx, payment.ID, models.PaymentPending, models.PaymentFailed, baseTime)
	require.NoError(t, err)
	require.True(t, ok)

	result := &ReconcileResult{}
	err = database.RunInTx(ctx, f.db, func(tx *sql.Tx) error {
		return f.payments.settleTx(ctx, tx, stale, models.PaymentCompleted, result)
	})
	require.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Nil(t, result.Payment)

	got, err := f.payments.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	stored := f.reload(t, client.ID)
	assert.Nil(t, stored.Plan)
	assert.Nil(t, stored.AssistantID)
}

func TestCreatePaymentReusesRecentPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "ivy")

	first := f.payment(t, client.ID, models.PlanStarter)
	assert.Equal(t, models.PaymentPending, first.Status)
	assert.Equal(t, "GBP", first.Currency)

	f.now = baseTime.Add(10 * time.Minute)
	again, reused, err := f.payments.CreatePayment(ctx, CreatePaymentInput{ClientID: client.ID, PlanName: "Starter", Amount: 4900})
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, again.ID)

	f.now = baseTime.Add(31 * time.Minute)
	fresh, reused, err := f.payments.CreatePayment(ctx, CreatePaymentInput{ClientID: client.ID, PlanName: "Starter", Amount: 4900})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, first.ID, fresh.ID)

	list, err := f.payments.ListByClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreatePaymentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "jack")

	_, _, err := f.payments.CreatePayment(ctx, CreatePaymentInput{ClientID: client.ID, PlanName: "Gold", Amount: 100})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = f.payments.CreatePayment(ctx, CreatePaymentInput{ClientID: client.ID, PlanName: "Elite", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = f.payments.CreatePayment(ctx, CreatePaymentInput{ClientID: "nobody", PlanName: "Elite", Amount: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileRecordsOutcomeMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f := newFixtureWithRecorder(t, metrics.NewPrometheus(reg, "test"))
	client := f.client(t, "kate")
	payment := f.payment(t, client.ID, models.PlanStarter)

	_, err := f.payments.Reconcile(ctx, payment.ID, "failed")
	require.NoError(t, err)
	_, err = f.payments.Reconcile(ctx, payment.ID, "failed")
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	expected := `
# HELP test_payments_reconcile_total Payment confirmation events processed, by outcome.
# TYPE test_payments_reconcile_total counter
test_payments_reconcile_total{outcome="already_processed"} 1
test_payments_reconcile_total{outcome="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_payments_reconcile_total"))
}
