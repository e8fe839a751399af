package models

// A late gateway confirmation still settles a canceled checkout.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCanceled},
	PaymentProcessing: {PaymentCompleted, PaymentFailed},
	PaymentCanceled:   {PaymentCompleted, PaymentFailed},
}

// IsTerminal reports whether a payment in this status has been settled by the gateway.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus matches the status name exactly.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch status := PaymentStatus(raw); status {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCanceled:
		return status, true
	default:
		return "", false
	}
}

// Plans lists the purchasable plans in display order.
func Plans() []PlanName {
	return []PlanName{PlanStarter, PlanProfessional, PlanElite}
}

// ParsePlan matches the plan name exactly; plan names are case sensitive.
func ParsePlan(raw string) (PlanName, bool) {
	for _, plan := range Plans() {
		if string(plan) == raw {
			return plan, true
		}
	}
	return "", false
}

func ParseMessageRole(raw string) (MessageRole, bool) {
	switch role := MessageRole(raw); role {
	case RoleClient, RoleAssistant:
		return role, true
	default:
		return "", false
	}
}
