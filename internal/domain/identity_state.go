package domain

// IdentityState es la vista de solo lectura que consumen las pantallas.
// Solo el reducer del IdentityStore la construye.
type IdentityState struct {
	User                 *User         `json:"user"`
	Profile              *UserProfile  `json:"profile"`
	Subscription         *Subscription `json:"subscription"`
	SubscriptionConflict bool          `json:"subscription_conflict"`
	IsAuthenticated      bool          `json:"is_authenticated"`
	IsLoading            bool          `json:"is_loading"`
	IsInitialized        bool          `json:"is_initialized"`
	Error                string        `json:"error,omitempty"`
}

// SubscriptionTier devuelve el plan vigente o FreeTier.
func (s IdentityState) SubscriptionTier() string {
	if s.SubscriptionConflict || !s.Subscription.Current() || s.Subscription.PlanID == "" {
		return FreeTier
	}
	return s.Subscription.PlanID
}

func (s IdentityState) IsSubscribed() bool {
	return !s.SubscriptionConflict && s.Subscription.Current()
}

func (s IdentityState) IsTrialing() bool {
	return s.IsSubscribed() && s.Subscription.Status == SubscriptionStatusTrialing
}
