package service

import "story-identity/internal/domain"

// Action es un cambio de identidad. Solo reduceIdentity las interpreta.
type Action interface {
	actionName() string
}

// SetLoading abre (true) o cierra (false) una operacion en curso.
type SetLoading struct{ Loading bool }

// Initialize publica el resultado de la comprobacion inicial de sesion.
type Initialize struct {
	User         *domain.User
	Profile      *domain.UserProfile
	Subscription SubscriptionResult
	Err          string
}

// MarkInitialized marca el arranque como terminado sin tocar la identidad.
// Se usa cuando un evento mas nuevo ya publico su resultado.
type MarkInitialized struct{}

// SetUser reemplaza el usuario. Si cambia de usuario se descartan perfil y suscripcion.
type SetUser struct{ User *domain.User }

// SetIdentity publica usuario, perfil y suscripcion juntos.
type SetIdentity struct {
	User         *domain.User
	Profile      *domain.UserProfile
	Subscription SubscriptionResult
}

type SetError struct{ Message string }

type ClearError struct{}

// SignOut limpia la identidad pero conserva IsInitialized.
type SignOut struct{}

func (SetLoading) actionName() string      { return "set_loading" }
func (Initialize) actionName() string      { return "initialize" }
func (MarkInitialized) actionName() string { return "mark_initialized" }
func (SetUser) actionName() string         { return "set_user" }
func (SetIdentity) actionName() string     { return "set_identity" }
func (SetError) actionName() string        { return "set_error" }
func (ClearError) actionName() string      { return "clear_error" }
func (SignOut) actionName() string         { return "sign_out" }

// identityState es el estado interno: la vista publica mas el contador de operaciones en curso.
type identityState struct {
	view     domain.IdentityState
	inflight int
}

// reduceIdentity es una funcion pura. IsAuthenticated y IsLoading siempre se derivan.
func reduceIdentity(s identityState, action Action) identityState {
	switch a := action.(type) {
	case SetLoading:
		if a.Loading {
			s.inflight++
		} else if s.inflight > 0 {
			s.inflight--
		}
	case Initialize:
		s.view.User = copyUser(a.User)
		s.view.Profile = copyProfile(a.Profile)
		s.view.Error = a.Err
		applySubscription(&s.view, a.Subscription)
		s.view.IsInitialized = true
	case MarkInitialized:
		s.view.IsInitialized = true
	case SetUser:
		setUser(&s.view, a.User)
	case SetIdentity:
		setUser(&s.view, a.User)
		if a.User != nil {
			s.view.Profile = copyProfile(a.Profile)
			applySubscription(&s.view, a.Subscription)
		}
	case SetError:
		s.view.Error = a.Message
	case ClearError:
		s.view.Error = ""
	case SignOut:
		s.view = domain.IdentityState{IsInitialized: s.view.IsInitialized}
	}

	s.view.IsAuthenticated = s.view.User != nil
	s.view.IsLoading = s.inflight > 0
	return s
}

func setUser(view *domain.IdentityState, user *domain.User) {
	if user == nil {
		view.User = nil
		view.Profile = nil
		view.Subscription = nil
		view.SubscriptionConflict = false
		return
	}
	if view.User == nil || view.User.ID != user.ID {
		view.Profile = nil
		view.Subscription = nil
		view.SubscriptionConflict = false
	}
	view.User = copyUser(user)
	view.Error = ""
	// El conflicto y su mensaje sobreviven a un SetUser del mismo usuario.
	if view.SubscriptionConflict {
		view.Error = MultipleSubscriptionsMessage
	}
}

func applySubscription(view *domain.IdentityState, result SubscriptionResult) {
	switch result.Kind {
	case SubscriptionOK:
		view.Subscription = copySubscription(result.Subscription)
		view.SubscriptionConflict = false
	case SubscriptionConflict:
		view.Subscription = nil
		view.SubscriptionConflict = true
		view.Error = MultipleSubscriptionsMessage
	default:
		view.Subscription = nil
		view.SubscriptionConflict = false
	}
	if !view.SubscriptionConflict && view.Error == MultipleSubscriptionsMessage {
		view.Error = ""
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func copyProfile(p *domain.UserProfile) *domain.UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copySubscription(s *domain.Subscription) *domain.Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
