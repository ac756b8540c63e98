package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"story-identity/internal/domain"
)

type fakeAuthServer struct {
	mu        sync.Mutex
	calls     map[string]int
	lastBody  map[string]any
	lastQuery map[string]string
	lastAuth  string
}

func newFakeAuthServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, f *fakeAuthServer)) (*httptest.Server, *fakeAuthServer) {
	t.Helper()
	f := &fakeAuthServer{calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+r.URL.Path]++
		f.lastAuth = r.Header.Get("Authorization")
		f.lastQuery = map[string]string{}
		for k := range r.URL.Query() {
			f.lastQuery[k] = r.URL.Query().Get(k)
		}
		f.lastBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		}
		f.mu.Unlock()
		handler(w, r, f)
	}))
	t.Cleanup(srv.Close)
	return srv, f
}

func (f *fakeAuthServer) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func tokenBody(access, refresh string, expiresIn int64) map[string]any {
	return map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    expiresIn,
		"refresh_token": refresh,
		"user": map[string]any{
			"id":            "u1",
			"email":         "user@example.com",
			"user_metadata": map[string]any{"name": "Ada"},
		},
	}
}

func TestHTTPGateway_SignInWithPasswordStoresSessionAndEmits(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request, _ *fakeAuthServer) {
		if r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "password" {
			writeJSON(w, http.StatusOK, tokenBody("access-1", "refresh-1", 3600))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	store := NewMemorySessionStore()
	gw := NewHTTPGateway(srv.URL, "anon-key", store, zap.NewNop())

	var events []domain.AuthEvent
	gw.OnAuthStateChange(func(e domain.AuthEvent) { events = append(events, e) })

	session, err := gw.SignInWithPassword(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.User == nil || session.User.ID != "u1" || session.User.DisplayName() != "Ada" {
		t.Fatalf("unexpected user %+v", session.User)
	}
	if fake.lastBody["email"] != "user@example.com" || fake.lastBody["password"] != "secret" {
		t.Fatalf("unexpected request body %v", fake.lastBody)
	}
	if fake.lastAuth != "Bearer anon-key" {
		t.Fatalf("expected anon key bearer, got %s", fake.lastAuth)
	}
	if len(events) != 1 || events[0].Type != domain.AuthEventSignedIn {
		t.Fatalf("expected one SIGNED_IN event, got %v", events)
	}

	stored, _ := store.Load(context.Background())
	if stored == nil || stored.AccessToken != "access-1" {
		t.Fatalf("expected session persisted, got %+v", stored)
	}
	got, err := gw.GetSession(context.Background())
	if err != nil || got == nil || got.AccessToken != "access-1" {
		t.Fatalf("expected cached session, got %+v (%v)", got, err)
	}
	if fake.count("POST /token") != 1 {
		t.Fatalf("expected no refresh for fresh session")
	}
}

func TestHTTPGateway_ErrorResponsesCarryStatus(t *testing.T) {
	srv, _ := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":       400,
			"error_code": "invalid_credentials",
			"msg":        "Invalid login credentials",
		})
	})
	gw := NewHTTPGateway(srv.URL, "anon-key", nil, nil)

	_, err := gw.SignInWithPassword(context.Background(), "user@example.com", "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode() != http.StatusBadRequest || apiErr.Code != "invalid_credentials" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if apiErr.Error() != "Invalid login credentials" {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestHTTPGateway_NetworkFailureIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := NewHTTPGateway(url, "anon-key", nil, nil)
	_, err := gw.SignInWithPassword(context.Background(), "user@example.com", "secret")
	if err == nil || !strings.Contains(err.Error(), "network request failed") {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestHTTPGateway_GetSessionRefreshesExpired(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request, _ *fakeAuthServer) {
		if r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "refresh_token" {
			writeJSON(w, http.StatusOK, tokenBody("access-2", "refresh-2", 3600))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	store := NewMemorySessionStore()
	_ = store.Save(context.Background(), &domain.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         &domain.User{ID: "u1"},
	})
	gw := NewHTTPGateway(srv.URL, "anon-key", store, nil)

	var events []domain.AuthEventType
	gw.OnAuthStateChange(func(e domain.AuthEvent) { events = append(events, e.Type) })

	session, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.AccessToken != "access-2" {
		t.Fatalf("expected refreshed token, got %s", session.AccessToken)
	}
	if fake.lastBody["refresh_token"] != "refresh-1" {
		t.Fatalf("expected refresh token in body, got %v", fake.lastBody)
	}
	if len(events) != 1 || events[0] != domain.AuthEventTokenRefreshed {
		t.Fatalf("expected TOKEN_REFRESHED, got %v", events)
	}
}

func TestHTTPGateway_RejectedRefreshDropsSession(t *testing.T) {
	srv, _ := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Refresh Token Not Found"})
	})
	store := NewMemorySessionStore()
	_ = store.Save(context.Background(), &domain.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	gw := NewHTTPGateway(srv.URL, "anon-key", store, nil)

	var events []domain.AuthEventType
	gw.OnAuthStateChange(func(e domain.AuthEvent) { events = append(events, e.Type) })

	session, err := gw.GetSession(context.Background())
	if err != nil || session != nil {
		t.Fatalf("expected no session and no error, got %+v (%v)", session, err)
	}
	if stored, _ := store.Load(context.Background()); stored != nil {
		t.Fatalf("expected store cleared")
	}
	if len(events) != 1 || events[0] != domain.AuthEventSignedOut {
		t.Fatalf("expected SIGNED_OUT, got %v", events)
	}
}

func TestHTTPGateway_SignUpWithoutAutoconfirmReturnsUserOnly(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "u9", "email": "new@example.com"})
	})
	gw := NewHTTPGateway(srv.URL, "anon-key", nil, nil)

	res, err := gw.SignUp(context.Background(), "new@example.com", "secret1", map[string]any{"name": "Grace"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Session != nil {
		t.Fatalf("expected no session")
	}
	if res.User == nil || res.User.ID != "u9" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	data, _ := fake.lastBody["data"].(map[string]any)
	if data["name"] != "Grace" {
		t.Fatalf("expected metadata forwarded, got %v", fake.lastBody)
	}
}

func TestHTTPGateway_SignOutClearsEvenWhenRemoteFails(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := NewMemorySessionStore()
	_ = store.Save(context.Background(), &domain.Session{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})
	gw := NewHTTPGateway(srv.URL, "anon-key", store, nil)

	err := gw.SignOut(context.Background())
	if err == nil {
		t.Fatalf("expected remote error to be returned")
	}
	if fake.lastAuth != "Bearer access-1" {
		t.Fatalf("expected access token bearer, got %s", fake.lastAuth)
	}
	if stored, _ := store.Load(context.Background()); stored != nil {
		t.Fatalf("expected local session cleared")
	}
}

func TestHTTPGateway_SignInWithOAuthBuildsURL(t *testing.T) {
	gw := NewHTTPGateway("https://auth.example.com/auth/v1/", "anon-key", nil, nil)

	u, err := gw.SignInWithOAuth(context.Background(), "github", "https://app.example.com/callback")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(u, "https://auth.example.com/auth/v1/authorize?") {
		t.Fatalf("unexpected url %s", u)
	}
	if !strings.Contains(u, "provider=github") || !strings.Contains(u, "redirect_to=https%3A%2F%2Fapp.example.com%2Fcallback") {
		t.Fatalf("missing query params in %s", u)
	}

	if _, err := gw.SignInWithOAuth(context.Background(), " ", ""); err == nil {
		t.Fatalf("expected error for empty provider")
	}
}

func TestHTTPGateway_ResetPasswordSendsRedirect(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	gw := NewHTTPGateway(srv.URL, "anon-key", nil, nil)

	if err := gw.ResetPasswordForEmail(context.Background(), "user@example.com", "https://app/reset"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fake.count("POST /recover") != 1 {
		t.Fatalf("expected recover call")
	}
	if fake.lastQuery["redirect_to"] != "https://app/reset" {
		t.Fatalf("expected redirect_to, got %v", fake.lastQuery)
	}
}

func TestHTTPGateway_UpdateUserRequiresSession(t *testing.T) {
	gw := NewHTTPGateway("http://127.0.0.1:1", "anon-key", nil, nil)

	_, err := gw.UpdateUser(context.Background(), UserAttributes{Password: "newpass"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 api error, got %v", err)
	}
}

func TestHTTPGateway_UpdateUserEmitsUserUpdated(t *testing.T) {
	srv, fake := newFakeAuthServer(t, func(w http.ResponseWriter, _ *http.Request, _ *fakeAuthServer) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "user@example.com"})
	})
	store := NewMemorySessionStore()
	_ = store.Save(context.Background(), &domain.Session{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})
	gw := NewHTTPGateway(srv.URL, "anon-key", store, nil)

	var events []domain.AuthEventType
	gw.OnAuthStateChange(func(e domain.AuthEvent) { events = append(events, e.Type) })

	user, err := gw.UpdateUser(context.Background(), UserAttributes{Password: "newpass"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if fake.count("PUT /user") != 1 || fake.lastBody["password"] != "newpass" {
		t.Fatalf("expected PUT /user with password, got %v", fake.lastBody)
	}
	if len(events) != 1 || events[0] != domain.AuthEventUserUpdated {
		t.Fatalf("expected USER_UPDATED, got %v", events)
	}
}

func TestSessionFromToken_FallsBackToJWTClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second).UTC()
	claims := accessClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	gw := NewHTTPGateway("http://unused", "k", nil, nil)
	session := gw.sessionFromToken(tokenResponse{AccessToken: signed})

	if !session.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, session.ExpiresAt)
	}
	if session.User == nil || session.User.ID != "u1" || session.User.Email != "user@example.com" {
		t.Fatalf("expected user from claims, got %+v", session.User)
	}
}
