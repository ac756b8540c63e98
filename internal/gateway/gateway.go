// Package gateway define el contrato con el backend de autenticacion y sus adaptadores.
package gateway

import (
	"context"
	"fmt"

	"story-identity/internal/domain"
)

// Gateway es la capacidad de autenticacion remota que consume el SessionManager.
// GetSession devuelve (nil, nil) cuando no hay sesion.
type Gateway interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	GetUser(ctx context.Context) (*domain.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (SignUpResult, error)
	SignOut(ctx context.Context) error
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*domain.User, error)
	OnAuthStateChange(listener Listener) Subscription
}

// SignUpResult trae Session solo si el backend confirma la cuenta en el acto.
type SignUpResult struct {
	User    *domain.User
	Session *domain.Session
}

// UserAttributes son los campos que UpdateUser puede modificar.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// APIError representa una respuesta no exitosa del backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("auth gateway error: status=%d", e.Status)
}

// StatusCode expone el status HTTP para el clasificador de errores.
func (e *APIError) StatusCode() int {
	return e.Status
}
