// Package metrics records engine outcomes.
package metrics

import "time"

// Recorder receives engine outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordReconcile records a payment reconciliation attempt and its outcome
	// ("completed", "failed", "already_processed", "not_found", "conflict", "invalid", "error").
	RecordReconcile(outcome string, duration time.Duration)

	// RecordAssignment records an assignment attempt by policy and result.
	RecordAssignment(policy string, result string)

	// RecordConversation records a get-or-create call; created is false when an
	// existing conversation was returned.
	RecordConversation(created bool)

	// RecordMessage records an appended message by role.
	RecordMessage(role string)
}

// Nop discards all metrics.
type Nop struct{}

var _ Recorder = Nop{}

func NewNop() Nop { return Nop{} }

func (Nop) RecordReconcile(string, time.Duration) {}

func (Nop) RecordAssignment(string, string) {}

func (Nop) RecordConversation(bool) {}

func (Nop) RecordMessage(string) {}
