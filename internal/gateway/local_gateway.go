package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"story-identity/internal/domain"
	"story-identity/internal/email"
)

const minPasswordLength = 6

var (
	errInvalidCredentials = &APIError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	errEmailNotConfirmed  = &APIError{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	errUserExists         = &APIError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	errWeakPassword       = &APIError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: "Password should be at least 6 characters"}
	errSessionMissing     = &APIError{Status: http.StatusUnauthorized, Code: "session_missing", Message: "auth session missing"}
	errMailFailure        = &APIError{Status: http.StatusInternalServerError, Code: "unexpected_failure", Message: "Error sending email"}
	errTooManyAttempts    = &APIError{Status: http.StatusTooManyRequests, Code: "over_request_rate_limit", Message: "Too many sign in attempts"}
)

type localUser struct {
	user         domain.User
	passwordHash string
	confirmed    bool
}

// LocalGateway es un backend de auth en proceso para desarrollo y pruebas.
// Firma access tokens HS256 y guarda contraseñas con bcrypt.
type LocalGateway struct {
	mu          sync.Mutex
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	autoConfirm bool
	users       map[string]*localUser
	refresh     map[string]string
	store       SessionStore
	events      *Broadcaster
	now         func() time.Time
	recoveries  []string
	limiter     AttemptLimiter
	mailer      email.Sender
}

// LocalOption configura el LocalGateway.
type LocalOption func(*LocalGateway)

// WithAutoConfirm hace que SignUp devuelva sesion sin confirmar el email.
func WithAutoConfirm(enabled bool) LocalOption {
	return func(g *LocalGateway) { g.autoConfirm = enabled }
}

// WithLocalClock reemplaza el reloj (util en tests de expiracion).
func WithLocalClock(now func() time.Time) LocalOption {
	return func(g *LocalGateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSignInLimiter limita los intentos de SignInWithPassword por email.
func WithSignInLimiter(limiter AttemptLimiter) LocalOption {
	return func(g *LocalGateway) { g.limiter = limiter }
}

// WithMailer envia los enlaces de confirmacion y recuperacion.
func WithMailer(sender email.Sender) LocalOption {
	return func(g *LocalGateway) { g.mailer = sender }
}

// WithLocalSessionStore reemplaza el store de sesion en memoria.
func WithLocalSessionStore(store SessionStore) LocalOption {
	return func(g *LocalGateway) {
		if store != nil {
			g.store = store
		}
	}
}

func NewLocalGateway(secret string, accessTTL time.Duration, opts ...LocalOption) *LocalGateway {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	g := &LocalGateway{
		secret:    []byte(secret),
		issuer:    "story-identity-local",
		accessTTL: accessTTL,
		users:     make(map[string]*localUser),
		refresh:   make(map[string]string),
		store:     NewMemorySessionStore(),
		events:    NewBroadcaster(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *LocalGateway) OnAuthStateChange(listener Listener) Subscription {
	return g.events.Subscribe(listener)
}

// ConfirmEmail marca la cuenta como confirmada, como haria el link del correo.
func (g *LocalGateway) ConfirmEmail(email string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[normalizeEmail(email)]
	if !ok {
		return false
	}
	u.confirmed = true
	return true
}

// Recoveries devuelve los emails que pidieron reset de contraseña.
func (g *LocalGateway) Recoveries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.recoveries))
	copy(out, g.recoveries)
	return out
}

func (g *LocalGateway) GetSession(ctx context.Context) (*domain.Session, error) {
	session, err := g.store.Load(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.Expired(g.now()) {
		return session, nil
	}

	g.mu.Lock()
	userID, ok := g.refresh[session.RefreshToken]
	delete(g.refresh, session.RefreshToken)
	var user domain.User
	if ok {
		if u := g.findByID(userID); u != nil {
			user = u.user
		} else {
			ok = false
		}
	}
	var refreshed *domain.Session
	if ok {
		refreshed, err = g.issueSessionLocked(user)
	}
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		if err := g.store.Clear(ctx); err != nil {
			return nil, err
		}
		g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})
		return nil, nil
	}
	if err := g.store.Save(ctx, refreshed); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

func (g *LocalGateway) GetUser(ctx context.Context) (*domain.User, error) {
	session, err := g.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, errSessionMissing
	}
	user := *session.User
	return &user, nil
}

func (g *LocalGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	if g.limiter != nil && !g.limiter.Allow(ctx, email) {
		return nil, errTooManyAttempts
	}
	g.mu.Lock()
	u, ok := g.users[normalizeEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		g.mu.Unlock()
		return nil, errInvalidCredentials
	}
	if !u.confirmed {
		g.mu.Unlock()
		return nil, errEmailNotConfirmed
	}
	session, err := g.issueSessionLocked(u.user)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := g.store.Save(ctx, session); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: session})
	return session, nil
}

func (g *LocalGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (SignUpResult, error) {
	email = normalizeEmail(email)
	if len(password) < minPasswordLength {
		return SignUpResult{}, errWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SignUpResult{}, err
	}

	g.mu.Lock()
	if _, exists := g.users[email]; exists {
		g.mu.Unlock()
		return SignUpResult{}, errUserExists
	}
	u := &localUser{
		user: domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  copyMetadata(metadata),
			CreatedAt: g.now().UTC(),
		},
		passwordHash: string(hash),
		confirmed:    g.autoConfirm,
	}
	g.users[email] = u
	user := u.user
	if !g.autoConfirm {
		g.mu.Unlock()
		if g.mailer != nil {
			link := "local://verify?" + url.Values{"type": {"signup"}, "email": {email}}.Encode()
			if err := g.mailer.SendConfirmation(ctx, email, link); err != nil {
				return SignUpResult{}, errMailFailure
			}
		}
		return SignUpResult{User: &user}, nil
	}
	session, err := g.issueSessionLocked(user)
	g.mu.Unlock()
	if err != nil {
		return SignUpResult{}, err
	}

	if err := g.store.Save(ctx, session); err != nil {
		return SignUpResult{}, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: session})
	return SignUpResult{User: &user, Session: session}, nil
}

func (g *LocalGateway) SignOut(ctx context.Context) error {
	session, err := g.store.Load(ctx)
	if err != nil {
		return err
	}
	if session != nil {
		g.mu.Lock()
		delete(g.refresh, session.RefreshToken)
		g.mu.Unlock()
	}
	if err := g.store.Clear(ctx); err != nil {
		return err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})
	return nil
}

func (g *LocalGateway) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", &APIError{Status: http.StatusUnprocessableEntity, Code: "validation_failed", Message: "provider is required"}
	}
	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return "local://authorize?" + query.Encode(), nil
}

// ResetPasswordForEmail no revela si el email existe.
func (g *LocalGateway) ResetPasswordForEmail(ctx context.Context, address, redirectTo string) error {
	address = normalizeEmail(address)
	g.mu.Lock()
	_, ok := g.users[address]
	if ok {
		g.recoveries = append(g.recoveries, address)
	}
	g.mu.Unlock()
	if !ok || g.mailer == nil {
		return nil
	}

	if redirectTo == "" {
		redirectTo = "local://recover"
	}
	link := redirectTo + "?" + url.Values{"type": {"recovery"}, "token": {uuid.NewString()}}.Encode()
	if err := g.mailer.SendPasswordRecovery(ctx, address, link); err != nil {
		return errMailFailure
	}
	return nil
}

func (g *LocalGateway) UpdateUser(ctx context.Context, attrs UserAttributes) (*domain.User, error) {
	session, err := g.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, errSessionMissing
	}

	var hash []byte
	if attrs.Password != "" {
		if len(attrs.Password) < minPasswordLength {
			return nil, errWeakPassword
		}
		hash, err = bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	u := g.findByID(session.User.ID)
	if u == nil {
		g.mu.Unlock()
		return nil, errSessionMissing
	}
	if hash != nil {
		u.passwordHash = string(hash)
	}
	if len(attrs.Data) > 0 {
		if u.user.Metadata == nil {
			u.user.Metadata = make(map[string]any, len(attrs.Data))
		}
		for k, v := range attrs.Data {
			u.user.Metadata[k] = v
		}
	}
	user := u.user
	user.Metadata = copyMetadata(u.user.Metadata)
	g.mu.Unlock()

	session.User = &user
	if err := g.store.Save(ctx, session); err != nil {
		return nil, err
	}
	g.events.Emit(domain.AuthEvent{Type: domain.AuthEventUserUpdated, Session: session})
	return &user, nil
}

// ParseAccessToken valida un access token emitido por este gateway.
func (g *LocalGateway) ParseAccessToken(token string) (*domain.User, error) {
	var claims accessClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithTimeFunc(g.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &APIError{Status: http.StatusUnauthorized, Code: "token_expired", Message: "token is expired"}
		}
		return nil, &APIError{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT"}
	}
	return &domain.User{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata}, nil
}

// issueSessionLocked requiere g.mu tomado.
func (g *LocalGateway) issueSessionLocked(user domain.User) (*domain.Session, error) {
	if len(g.secret) == 0 {
		return nil, errors.New("local gateway secret not configured")
	}
	now := g.now().UTC()
	expiresAt := now.Add(g.accessTTL)
	claims := accessClaims{
		Email:        user.Email,
		UserMetadata: user.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, err
	}
	refreshToken := uuid.NewString()
	g.refresh[refreshToken] = user.ID

	cp := user
	cp.Metadata = copyMetadata(user.Metadata)
	return &domain.Session{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         &cp,
	}, nil
}

func (g *LocalGateway) findByID(id string) *localUser {
	for _, u := range g.users {
		if u.user.ID == id {
			return u
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
