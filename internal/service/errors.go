package service

import (
	"errors"
	"fmt"
)

// MultipleSubscriptionsMessage es el texto visible cuando un usuario tiene mas de una suscripcion.
const MultipleSubscriptionsMessage = "Multiple subscriptions found for this account. Please contact support."

var (
	ErrManagerDestroyed   = errors.New("session manager destroyed")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrMissingPassword    = errors.New("password is required")
	ErrMissingProvider    = errors.New("oauth provider is required")
)

// ValidationError se produce antes de cualquier llamada de red. Nunca se reintenta.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrorKind es la categoria estable de un error de autenticacion.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindSessionExpired     ErrorKind = "session_expired"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNetwork            ErrorKind = "network"
	KindUnexpected         ErrorKind = "unexpected"
)

// AuthError es un fallo del gateway ya clasificado.
type AuthError struct {
	Kind       ErrorKind
	Status     int
	Message    string
	ClearState bool
	Err        error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ProfileFetchError indica que se agotaron los intentos de leer el perfil.
type ProfileFetchError struct {
	UserID   string
	Attempts int
	Err      error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("profile fetch for %s failed after %d attempts: %v", e.UserID, e.Attempts, e.Err)
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}

// SubscriptionConflictError es una violacion de integridad: mas de una fila para el usuario.
type SubscriptionConflictError struct {
	UserID string
	Count  int
}

func (e *SubscriptionConflictError) Error() string {
	return MultipleSubscriptionsMessage
}
