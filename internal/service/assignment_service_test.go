package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/clientdesk/internal/balancer"
	"github.com/digkill/clientdesk/internal/models"
)

func TestAssignTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	client := f.client(t, "lena")

	for i := 0; i < 2; i++ {
		got, err := f.assignments.Assign(ctx, client.ID, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got.AssistantID)
		assert.Equal(t, a.ID, *got.AssistantID)
	}

	ids, err := f.assistantRepo.ClientIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{client.ID}, ids)
}

func TestAssignToAnotherAssistantConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	b := f.assistant(t, "b")
	client := f.client(t, "mike")

	_, err := f.assignments.Assign(ctx, client.ID, a.ID)
	require.NoError(t, err)
	_, err = f.assignments.Assign(ctx, client.ID, b.ID)
	require.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, a.ID, *f.reload(t, client.ID).AssistantID)
	ids, err := f.assistantRepo.ClientIDs(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// The re-read after a lost race may come from an older snapshot that has no
// assistant yet; that is still a conflict and must not panic.
func TestAssignmentConflictFromStaleRead(t *testing.T) {
	assistantID := "asst-01-a"
	tests := []struct {
		name   string
		client *models.Client
		want   error
	}{
		{"vanished", nil, ErrNotFound},
		{"stale snapshot", &models.Client{ID: "c1"}, ErrConflict},
		{"current snapshot", &models.Client{ID: "c1", AssistantID: &assistantID}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = assignmentConflict(tt.client, "c1") })
			assert.ErrorIs(t, err, tt.want)
		})
	}
	err := assignmentConflict(&models.Client{ID: "c1", AssistantID: &assistantID}, "c1")
	assert.Contains(t, err.Error(), assistantID)
}

func TestAssignUnknownParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	client := f.client(t, "nina")

	_, err := f.assignments.Assign(ctx, "ghost", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.assignments.Assign(ctx, client.ID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.assignments.Assign(ctx, "", a.ID)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ids, err := f.assistantRepo.ClientIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, ids, "a failed assignment must not leave a half link")
}

func TestActivateSubscriptionWithoutAssistants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.client(t, "olga")

	_, err := f.assignments.ActivateSubscription(ctx, client.ID, "Professional")
	require.ErrorIs(t, err, ErrServiceUnavailable)

	stored := f.reload(t, client.ID)
	assert.Nil(t, stored.Plan)
	assert.Nil(t, stored.AssistantID)
	assert.True(t, stored.UpdatedAt.Equal(client.UpdatedAt))
}

func TestActivateSubscriptionAllAssistantsFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	f.assignments.subscription = balancer.RandomUnderCeiling{Ceiling: 1, IntN: func(int) int { return 0 }}
	first := f.client(t, "p1")
	_, err := f.assignments.Assign(ctx, first.ID, a.ID)
	require.NoError(t, err)

	second := f.client(t, "p2")
	_, err = f.assignments.ActivateSubscription(ctx, second.ID, "Starter")
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Nil(t, f.reload(t, second.ID).Plan)
}

func TestActivateSubscriptionSetsPlanForOneMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assistant(t, "a")
	client := f.client(t, "quinn")
	f.now = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	result, err := f.assignments.ActivateSubscription(ctx, client.ID, "Elite")
	require.NoError(t, err)
	assert.Equal(t, a.ID, result.Assistant.ID)
	require.NotNil(t, result.Client.Plan)
	assert.Equal(t, models.PlanElite, result.Client.Plan.Name)
	assert.True(t, result.Client.Plan.ExpiresAt.Equal(f.now.AddDate(0, 1, 0)))

	ids, err := f.assistantRepo.ClientIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{client.ID}, ids)
}

func TestActivateSubscriptionReassignsAndDropsOldLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.assistant(t, "old")
	next := f.assistant(t, "next")
	client := f.client(t, "rita")
	_, err := f.assignments.Assign(ctx, client.ID, old.ID)
	require.NoError(t, err)

	f.assignments.subscription = balancer.RandomUnderCeiling{Ceiling: 10, IntN: func(n int) int { return n - 1 }}
	result, err := f.assignments.ActivateSubscription(ctx, client.ID, "Starter")
	require.NoError(t, err)
	assert.Equal(t, next.ID, result.Assistant.ID)
	assert.Equal(t, next.ID, *f.reload(t, client.ID).AssistantID)

	oldIDs, err := f.assistantRepo.ClientIDs(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, oldIDs)
	nextIDs, err := f.assistantRepo.ClientIDs(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{client.ID}, nextIDs)
}

func TestActivateSubscriptionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assistant(t, "a")
	client := f.client(t, "sam")

	_, err := f.assignments.ActivateSubscription(ctx, client.ID, "professional")
	assert.ErrorIs(t, err, ErrInvalidArgument, "plan names are case-sensitive")
	_, err = f.assignments.ActivateSubscription(ctx, "ghost", "Starter")
	assert.ErrorIs(t, err, ErrNotFound)
}
