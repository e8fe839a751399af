package models

import "time"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCanceled   PaymentStatus = "canceled"
)

type PlanName string

const (
	PlanStarter      PlanName = "Starter"
	PlanProfessional PlanName = "Professional"
	PlanElite        PlanName = "Elite"
)

type MessageRole string

const (
	RoleClient    MessageRole = "client"
	RoleAssistant MessageRole = "assistant"
)

type Payment struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id"`
	PlanName    PlanName      `json:"plan_name"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Provider    string        `json:"provider"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Plan is the subscription a client currently holds.
type Plan struct {
	Name      PlanName  `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Client struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Plan        *Plan     `json:"plan,omitempty"`
	AssistantID *string   `json:"assistant_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasAssistant reports whether the client is linked to an assistant.
func (c *Client) HasAssistant() bool {
	return c.AssistantID != nil && *c.AssistantID != ""
}

type Assistant struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// AssistantLoad is one roster entry: an assistant and the size of its client set.
type AssistantLoad struct {
	AssistantID string `json:"assistant_id"`
	ClientCount int    `json:"client_count"`
}

type Conversation struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"client_id"`
	AssistantID    string    `json:"assistant_id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"created_at"`
}
