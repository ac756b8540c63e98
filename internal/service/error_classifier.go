package service

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const (
	msgInvalidCredentials = "Invalid login credentials. Please check your email and password."
	msgSessionExpired     = "Your session has expired. Please sign in again."
	msgInvalidInput       = "Invalid input. Please check the fields and try again."
	msgRateLimited        = "Too many requests. Please wait a moment and try again."
	msgNetwork            = "Network error. Please check your connection and try again."
	msgUnexpectedFormat   = "An unexpected error occurred: %s"
)

// Classification es el resultado de clasificar un fallo del gateway.
type Classification struct {
	Kind             ErrorKind
	Status           int
	UserMessage      string
	ShouldClearState bool
}

type statusCoder interface {
	StatusCode() int
}

type classifierRule struct {
	kind       ErrorKind
	message    string
	clearState bool
	match      func(status int, err error) bool
}

func statusIs(code int) func(int, error) bool {
	return func(status int, _ error) bool { return status == code }
}

// La primera regla que coincide gana; no hay caida a la siguiente.
var classifierRules = []classifierRule{
	{kind: KindInvalidCredentials, message: msgInvalidCredentials, match: statusIs(http.StatusBadRequest)},
	{kind: KindSessionExpired, message: msgSessionExpired, clearState: true, match: statusIs(http.StatusUnauthorized)},
	{kind: KindInvalidInput, message: msgInvalidInput, match: statusIs(http.StatusUnprocessableEntity)},
	{kind: KindRateLimited, message: msgRateLimited, match: statusIs(http.StatusTooManyRequests)},
	{kind: KindNetwork, message: msgNetwork, match: func(_ int, err error) bool { return isNetworkError(err) }},
}

// ErrorClassifier traduce errores del gateway a mensajes para el usuario.
type ErrorClassifier struct{}

func NewErrorClassifier() ErrorClassifier {
	return ErrorClassifier{}
}

func (ErrorClassifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnexpected, UserMessage: fmt.Sprintf(msgUnexpectedFormat, "unknown error")}
	}
	status := statusOf(err)
	for _, rule := range classifierRules {
		if rule.match(status, err) {
			return Classification{
				Kind:             rule.kind,
				Status:           status,
				UserMessage:      rule.message,
				ShouldClearState: rule.clearState,
			}
		}
	}
	return Classification{
		Kind:        KindUnexpected,
		Status:      status,
		UserMessage: fmt.Sprintf(msgUnexpectedFormat, err.Error()),
	}
}

// AuthError envuelve err con su clasificacion.
func (c ErrorClassifier) AuthError(err error) *AuthError {
	cl := c.Classify(err)
	return &AuthError{
		Kind:       cl.Kind,
		Status:     cl.Status,
		Message:    cl.UserMessage,
		ClearState: cl.ShouldClearState,
		Err:        err,
	}
}

func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "network") || strings.Contains(msg, "fetch")
}
