package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"story-identity/internal/domain"
)

const identityStateKey = "identity_state"

type identitySource interface {
	State() domain.IdentityState
}

// RequireAuthenticated corta la request si no hay usuario con sesion y guarda el snapshot en el contexto.
func RequireAuthenticated(source identitySource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if source == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session manager not configured"})
			c.Abort()
			return
		}

		state := source.State()
		if !state.IsAuthenticated {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			c.Abort()
			return
		}

		c.Set(identityStateKey, state)
		c.Next()
	}
}

// GetIdentityState obtiene el snapshot guardado por RequireAuthenticated.
func GetIdentityState(c *gin.Context) (domain.IdentityState, bool) {
	val, ok := c.Get(identityStateKey)
	if !ok {
		return domain.IdentityState{}, false
	}
	state, ok := val.(domain.IdentityState)
	return state, ok
}
