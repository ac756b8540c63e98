package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"story-identity/internal/domain"
)

// refreshMargin adelanta el refresh para no usar un token a punto de vencer.
const refreshMargin = 10 * time.Second

// HTTPGateway implementa Gateway contra un servidor de auth compatible con GoTrue.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	store   SessionStore
	events  *Broadcaster
	logger  *zap.Logger
	now     func() time.Time

	// refreshMu evita dos refresh concurrentes con el mismo refresh token.
	refreshMu sync.Mutex
}

// NewHTTPGateway construye el cliente. Un store nil usa memoria.
func NewHTTPGateway(baseURL, apiKey string, store SessionStore, logger *zap.Logger) *HTTPGateway {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		store:   store,
		events:  NewBroadcaster(),
		logger:  logger,
		now:     time.Now,
	}
}

func (g *HTTPGateway) OnAuthStateChange(listener Listener) Subscription {
	return g.events.Subscribe(listener)
}

func (g *HTTPGateway) GetSession(ctx context.Context) (*domain.Session, error) {
	session, err := g.store.Load(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.Expired(g.now().Add(refreshMargin)) {
		return session, nil
	}
	return g.refresh(ctx, session)
}

func (g *HTTPGateway) refresh(ctx context.Context, stale *domain.Session) (*domain.Session, error) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	// Otro llamador pudo haber refrescado mientras esperabamos el lock.
	current, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if current.AccessToken != stale.AccessToken && !current.Expired(g.now().Add(refreshMargin)) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return nil, g.dropSession(ctx)
	}

	var resp tokenResponse
	query := url.Values{"grant_type": {"refresh_token"}}
	err = g.doJSON(ctx, http.MethodPost, "/token", query, "", map[string]string{"refresh_token": current.RefreshToken}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			g.logger.Warn("refresh token rejected, dropping session", zap.Int("status", apiErr.Status))
			return nil, g.dropSession(ctx)
		}
		return nil, err
	}

	session := g.sessionFromToken(resp)
	if err := g.store.Save(ctx, session); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventTokenRefreshed, Session: session})
	return session, nil
}

func (g *HTTPGateway) dropSession(ctx context.Context) error {
	if err := g.store.Clear(ctx); err != nil {
		return err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})
	return nil
}

func (g *HTTPGateway) GetUser(ctx context.Context) (*domain.User, error) {
	session, err := g.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &APIError{Status: http.StatusUnauthorized, Code: "session_missing", Message: "auth session missing"}
	}
	var resp userResponse
	if err := g.doJSON(ctx, http.MethodGet, "/user", nil, session.AccessToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (g *HTTPGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp tokenResponse
	query := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}
	if err := g.doJSON(ctx, http.MethodPost, "/token", query, "", body, &resp); err != nil {
		return nil, err
	}
	session := g.sessionFromToken(resp)
	if err := g.store.Save(ctx, session); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: session})
	return session, nil
}

func (g *HTTPGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	var raw json.RawMessage
	if err := g.doJSON(ctx, http.MethodPost, "/signup", nil, "", body, &raw); err != nil {
		return SignUpResult{}, err
	}

	// Con autoconfirm el backend devuelve tokens; si no, solo el usuario.
	var token tokenResponse
	if err := json.Unmarshal(raw, &token); err == nil && token.AccessToken != "" {
		session := g.sessionFromToken(token)
		if err := g.store.Save(ctx, session); err != nil {
			return SignUpResult{}, err
		}
		g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: session})
		return SignUpResult{User: session.User, Session: session}, nil
	}
	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return SignUpResult{}, fmt.Errorf("unmarshal signup response: %w", err)
	}
	return SignUpResult{User: user.toDomain()}, nil
}

func (g *HTTPGateway) SignOut(ctx context.Context) error {
	session, loadErr := g.store.Load(ctx)
	var remoteErr error
	if loadErr == nil && session != nil && session.AccessToken != "" {
		remoteErr = g.doJSON(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil, nil)
	}
	if err := g.store.Clear(ctx); err != nil {
		return err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})
	if loadErr != nil {
		return loadErr
	}
	return remoteErr
}

// SignInWithOAuth solo arma la URL de redireccion; la sesion llega despues por el listener.
func (g *HTTPGateway) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", &APIError{Status: http.StatusUnprocessableEntity, Code: "validation_failed", Message: "provider is required"}
	}
	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return g.baseURL + "/authorize?" + query.Encode(), nil
}

func (g *HTTPGateway) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return g.doJSON(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email}, nil)
}

func (g *HTTPGateway) UpdateUser(ctx context.Context, attrs UserAttributes) (*domain.User, error) {
	session, err := g.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &APIError{Status: http.StatusUnauthorized, Code: "session_missing", Message: "auth session missing"}
	}
	var resp userResponse
	if err := g.doJSON(ctx, http.MethodPut, "/user", nil, session.AccessToken, attrs, &resp); err != nil {
		return nil, err
	}
	user := resp.toDomain()
	session.User = user
	if err := g.store.Save(ctx, session); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventUserUpdated, Session: session})
	return user, nil
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, query url.Values, accessToken string, body, out any) error {
	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", g.apiKey)
	bearer := g.apiKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("network request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("network request failed: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		g.logger.Debug("auth gateway error response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code = payload.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	for _, candidate := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if candidate != "" {
			apiErr.Message = candidate
			break
		}
	}
	return apiErr
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (u *userResponse) toDomain() *domain.User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &domain.User{
		ID:        u.ID,
		Email:     u.Email,
		Metadata:  u.UserMetadata,
		CreatedAt: u.CreatedAt,
	}
}

func (g *HTTPGateway) sessionFromToken(resp tokenResponse) *domain.Session {
	session := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		User:         resp.User.toDomain(),
	}
	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		session.ExpiresAt = g.now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		session.ExpiresAt = tokenExpiry(resp.AccessToken)
	}
	if session.User == nil {
		session.User = userFromToken(resp.AccessToken)
	}
	return session
}

// accessClaims son los claims que el backend firma en el access token.
// El cliente no tiene la clave: solo los decodifica.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

func parseUnverified(token string) (*accessClaims, bool) {
	if token == "" {
		return nil, false
	}
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, false
	}
	return &claims, true
}

func tokenExpiry(token string) time.Time {
	claims, ok := parseUnverified(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}

func userFromToken(token string) *domain.User {
	claims, ok := parseUnverified(token)
	if !ok || claims.Subject == "" {
		return nil
	}
	return &domain.User{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata}
}
