package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"story-identity/internal/domain"
)

type staticIdentity struct {
	state domain.IdentityState
}

func (s staticIdentity) State() domain.IdentityState { return s.state }

func newMiddlewareRouter(source identitySource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuthenticated(source), func(c *gin.Context) {
		state, ok := GetIdentityState(c)
		if !ok || state.User == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "missing identity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": state.User.ID})
	})
	return r
}

func TestRequireAuthenticated_RejectsAnonymous(t *testing.T) {
	r := newMiddlewareRouter(staticIdentity{state: domain.IdentityState{IsInitialized: true}})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthenticated_StoresSnapshot(t *testing.T) {
	user := &domain.User{ID: "ada-id"}
	r := newMiddlewareRouter(staticIdentity{state: domain.IdentityState{User: user, IsAuthenticated: true}})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != `{"user_id":"ada-id"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestGetIdentityState_MissingWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := GetIdentityState(c); ok {
		t.Fatalf("expected no snapshot without the middleware")
	}
}
