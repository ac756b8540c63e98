package domain

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"

	// FreeTier aplica cuando no hay una suscripcion vigente.
	FreeTier = "free"
)

// Subscription es la fila de suscripcion de un usuario. Debe existir como maximo una por UserID.
type Subscription struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Status            string     `json:"status"`
	PlanID            string     `json:"plan_id"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
	PaymentProvider   string     `json:"payment_provider,omitempty"`
	PaymentProviderID string     `json:"payment_provider_id,omitempty"`
}

// Current indica si la suscripcion otorga acceso al plan.
func (s *Subscription) Current() bool {
	if s == nil {
		return false
	}
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
