package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"story-identity/internal/domain"
	"story-identity/internal/gateway"
	"story-identity/internal/notify"
)

type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseInitializing    Phase = "initializing"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseDestroyed       Phase = "destroyed"
)

const (
	msgMissingCredentials = "Please enter both email and password."
	msgInvalidEmail       = "Please enter a valid email address."
	msgMissingPassword    = "Please enter a password."
	msgMissingProvider    = "Please choose a sign-in provider."

	msgSignedIn        = "Signed in successfully."
	msgSignedUp        = "Account created. Check your email to confirm your account."
	msgSignedOut       = "Signed out."
	msgResetSent       = "Password reset instructions have been sent to your email."
	msgPasswordUpdated = "Password updated successfully."
)

// SessionManagerConfig son las rutas y URLs que usa el manager para redirigir.
type SessionManagerConfig struct {
	RedirectURL       string
	AuthenticatedPath string
	SignInPath        string
}

// SessionManager es el dueño del ciclo de vida de la sesion: arranque, escucha de
// eventos del gateway, acciones del usuario y desmontaje.
//
// Cada cambio pasa por el IdentityStore. Los resultados asincronos solo se aplican
// si la instancia sigue suscripta y si su generacion sigue siendo la actual.
type SessionManager struct {
	logger        *zap.Logger
	gateway       gateway.Gateway
	profiles      *ProfileResolver
	subscriptions *SubscriptionResolver
	classifier    ErrorClassifier
	store         *IdentityStore
	notifier      notify.Notifier
	navigator     notify.Navigator
	validate      *validator.Validate
	cfg           SessionManagerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	phase      Phase
	subscribed bool
	generation uint64
	listener   gateway.Subscription
	initDone   chan struct{}
	initErr    error
}

func NewSessionManager(
	logger *zap.Logger,
	gw gateway.Gateway,
	profiles *ProfileResolver,
	subscriptions *SubscriptionResolver,
	store *IdentityStore,
	notifier notify.Notifier,
	navigator notify.Navigator,
	cfg SessionManagerConfig,
) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		profiles = NewProfileResolver(logger, nil, DefaultRetryPolicy())
	}
	if subscriptions == nil {
		subscriptions = NewSubscriptionResolver(logger, nil)
	}
	if store == nil {
		store = NewIdentityStore()
	}
	if notifier == nil {
		notifier = notify.Disabled{}
	}
	if navigator == nil {
		navigator = notify.Disabled{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		logger:        logger,
		gateway:       gw,
		profiles:      profiles,
		subscriptions: subscriptions,
		classifier:    NewErrorClassifier(),
		store:         store,
		notifier:      notifier,
		navigator:     navigator,
		validate:      validator.New(),
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
		phase:         PhaseUninitialized,
		subscribed:    true,
	}
}

// Init comprueba la sesion existente y registra el listener de eventos.
// Llamadas concurrentes comparten la misma ejecucion y el mismo error.
func (m *SessionManager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.phase == PhaseDestroyed {
		m.mu.Unlock()
		return ErrManagerDestroyed
	}
	if m.initDone != nil {
		done := m.initDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.initErr
	}
	m.initDone = make(chan struct{})
	m.phase = PhaseInitializing
	gen := m.generation
	m.store.Dispatch(SetLoading{Loading: true})
	m.mu.Unlock()

	// El gateway puede emitir dentro de OnAuthStateChange; por eso se registra sin el lock.
	sub := m.gateway.OnAuthStateChange(m.handleAuthEvent)
	m.mu.Lock()
	if m.subscribed {
		m.listener = sub
		m.mu.Unlock()
	} else {
		m.mu.Unlock()
		sub.Cancel()
	}

	err := m.initialize(ctx, gen)

	m.mu.Lock()
	m.initErr = err
	close(m.initDone)
	m.mu.Unlock()
	return err
}

func (m *SessionManager) initialize(ctx context.Context, gen uint64) error {
	defer m.dispatch(SetLoading{Loading: false})

	session, err := m.gateway.GetSession(ctx)
	if err != nil {
		authErr := m.classifier.AuthError(err)
		m.logger.Error("session check failed", zap.String("kind", string(authErr.Kind)), zap.Error(err))
		if _, err := m.finishInit(gen, Initialize{Err: authErr.Message}); err != nil {
			return err
		}
		return authErr
	}

	if session == nil || session.User == nil {
		_, err := m.finishInit(gen, Initialize{})
		return err
	}

	userID := session.User.ID
	profile, subscription := m.resolveIdentity(ctx, userID)
	applied, err := m.finishInit(gen, Initialize{User: session.User, Profile: profile, Subscription: subscription})
	if err != nil {
		return err
	}
	if applied {
		m.reportConflict(userID, subscription)
		m.logger.Info("session restored", zap.String("user_id", userID))
	}
	return nil
}

// finishInit publica el resultado del arranque. Si un evento mas nuevo ya gano,
// solo se marca la inicializacion y applied es false.
func (m *SessionManager) finishInit(gen uint64, action Initialize) (applied bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed {
		return false, ErrManagerDestroyed
	}
	var state domain.IdentityState
	if gen != m.generation {
		m.logger.Debug("initial session superseded by newer auth event")
		state = m.store.Dispatch(MarkInitialized{})
	} else {
		state = m.store.Dispatch(action)
		applied = true
	}
	m.syncPhaseLocked(state)
	return applied, nil
}

// handleAuthEvent corre en la goroutine del emisor; el trabajo lento va aparte.
func (m *SessionManager) handleAuthEvent(event domain.AuthEvent) {
	m.mu.Lock()
	if !m.subscribed {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("auth event received", zap.String("event", string(event.Type)), zap.Uint64("generation", gen))
	go func() {
		defer m.wg.Done()
		m.updateAuthState(m.ctx, gen, event)
	}()
}

func (m *SessionManager) updateAuthState(ctx context.Context, gen uint64, event domain.AuthEvent) {
	if event.Session == nil || event.Session.User == nil {
		m.dispatchCurrent(gen, SetUser{User: nil})
		return
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	user := event.Session.User
	profile, subscription := m.resolveIdentity(ctx, user.ID)
	if !m.dispatchCurrent(gen, SetIdentity{User: user, Profile: profile, Subscription: subscription}) {
		m.logger.Debug("discarding stale identity", zap.String("event", string(event.Type)), zap.Uint64("generation", gen))
		return
	}
	m.reportConflict(user.ID, subscription)
}

// resolveIdentity obtiene perfil y suscripcion en paralelo. Los fallos se
// registran y se tratan como ausencia.
func (m *SessionManager) resolveIdentity(ctx context.Context, userID string) (*domain.UserProfile, SubscriptionResult) {
	var (
		profile      *domain.UserProfile
		subscription SubscriptionResult
	)

	var g errgroup.Group
	g.Go(func() error {
		p, err := m.profiles.Resolve(ctx, userID)
		if err != nil {
			m.logger.Warn("continuing without profile", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		res, err := m.subscriptions.Resolve(ctx, userID)
		if err != nil {
			m.logger.Warn("subscription lookup failed, treating as none", zap.String("user_id", userID), zap.Error(err))
			subscription = SubscriptionResult{Kind: SubscriptionNone}
			return nil
		}
		subscription = res
		return nil
	})
	_ = g.Wait()
	return profile, subscription
}

// reportConflict avisa de un conflicto de suscripciones que ya quedo publicado.
func (m *SessionManager) reportConflict(userID string, subscription SubscriptionResult) {
	if err := subscription.Err(userID); err != nil {
		m.notifier.Error(err.Error())
	}
}

// dispatch aplica la accion solo si la instancia sigue suscripta.
func (m *SessionManager) dispatch(action Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed {
		return false
	}
	m.syncPhaseLocked(m.store.Dispatch(action))
	return true
}

// dispatchCurrent ademas exige que gen siga siendo la generacion vigente.
func (m *SessionManager) dispatchCurrent(gen uint64, action Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed || gen != m.generation {
		return false
	}
	m.syncPhaseLocked(m.store.Dispatch(action))
	return true
}

// invalidate descarta los resultados en vuelo y aplica las acciones dadas.
func (m *SessionManager) invalidate(actions ...Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed {
		return false
	}
	m.generation++
	for _, action := range actions {
		m.syncPhaseLocked(m.store.Dispatch(action))
	}
	return true
}

func (m *SessionManager) syncPhaseLocked(state domain.IdentityState) {
	if m.phase == PhaseDestroyed || !state.IsInitialized {
		return
	}
	if state.IsAuthenticated {
		m.phase = PhaseAuthenticated
	} else {
		m.phase = PhaseUnauthenticated
	}
}

func (m *SessionManager) alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// fail clasifica err, lo publica en el estado y lo devuelve como *AuthError.
// Un 401 ademas limpia la identidad y redirige al sign-in.
func (m *SessionManager) fail(op string, err error) error {
	authErr := m.classifier.AuthError(err)
	m.logger.Warn(op+" failed",
		zap.String("kind", string(authErr.Kind)),
		zap.Int("status", authErr.Status),
		zap.Error(err),
	)
	if authErr.ClearState {
		// SignOut y no un reinicio completo: el arranque ya ocurrio y no se repite.
		if !m.invalidate(SignOut{}, SetError{Message: authErr.Message}) {
			return authErr
		}
		m.navigator.Navigate(m.cfg.SignInPath)
	} else if !m.dispatch(SetError{Message: authErr.Message}) {
		return authErr
	}
	m.notifier.Error(authErr.Message)
	return authErr
}

func (m *SessionManager) invalid(field, message string, cause error) error {
	m.dispatch(SetError{Message: message})
	m.notifier.Error(message)
	return &ValidationError{Field: field, Message: message, Err: cause}
}

// Login inicia sesion con email y contraseña.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	if !m.alive() {
		return nil, ErrManagerDestroyed
	}
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, m.invalid("credentials", msgMissingCredentials, ErrMissingCredentials)
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	session, err := m.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, m.fail("login", err)
	}
	if session == nil || session.User == nil {
		return nil, m.fail("login", errors.New("sign in returned no session"))
	}

	if !m.dispatch(SetUser{User: session.User}) {
		return nil, ErrManagerDestroyed
	}
	m.notifier.Success(msgSignedIn)
	m.navigator.Navigate(m.cfg.AuthenticatedPath)
	m.logger.Info("user signed in", zap.String("user_id", session.User.ID))
	return session.User, nil
}

// Signup crea la cuenta. name se guarda en los metadatos del usuario.
func (m *SessionManager) Signup(ctx context.Context, email, password, name string) (*domain.User, error) {
	if !m.alive() {
		return nil, ErrManagerDestroyed
	}
	email = strings.TrimSpace(email)
	if err := m.validate.Var(email, "required,email"); err != nil {
		return nil, m.invalid("email", msgInvalidEmail, ErrInvalidEmail)
	}
	if strings.TrimSpace(password) == "" {
		return nil, m.invalid("password", msgMissingPassword, ErrMissingPassword)
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	metadata := map[string]any{}
	if name = strings.TrimSpace(name); name != "" {
		metadata["name"] = name
	}
	res, err := m.gateway.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, m.fail("signup", err)
	}
	if res.Session != nil && res.Session.User != nil {
		if !m.dispatch(SetUser{User: res.Session.User}) {
			return nil, ErrManagerDestroyed
		}
		m.notifier.Success(msgSignedIn)
		return res.Session.User, nil
	}
	m.notifier.Success(msgSignedUp)
	return res.User, nil
}

// Logout limpia el estado local primero. Un fallo remoto solo se registra.
func (m *SessionManager) Logout(ctx context.Context) error {
	if !m.alive() {
		return ErrManagerDestroyed
	}
	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	if !m.invalidate(SignOut{}) {
		return ErrManagerDestroyed
	}
	if err := m.gateway.SignOut(ctx); err != nil {
		m.logger.Warn("remote sign out failed, local state already cleared", zap.Error(err))
	}
	if !m.alive() {
		return ErrManagerDestroyed
	}
	m.notifier.Success(msgSignedOut)
	return nil
}

// LoginWithOAuth devuelve la URL del proveedor y redirige hacia ella.
func (m *SessionManager) LoginWithOAuth(ctx context.Context, provider string) (string, error) {
	if !m.alive() {
		return "", ErrManagerDestroyed
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", m.invalid("provider", msgMissingProvider, ErrMissingProvider)
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	target, err := m.gateway.SignInWithOAuth(ctx, provider, m.cfg.RedirectURL)
	if err != nil {
		return "", m.fail("oauth login", err)
	}
	if !m.alive() {
		return "", ErrManagerDestroyed
	}
	m.navigator.Navigate(target)
	return target, nil
}

// ResetPassword pide el email de recuperacion.
func (m *SessionManager) ResetPassword(ctx context.Context, email string) error {
	if !m.alive() {
		return ErrManagerDestroyed
	}
	email = strings.TrimSpace(email)
	if err := m.validate.Var(email, "required,email"); err != nil {
		return m.invalid("email", msgInvalidEmail, ErrInvalidEmail)
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	if err := m.gateway.ResetPasswordForEmail(ctx, email, m.cfg.RedirectURL); err != nil {
		return m.fail("password reset", err)
	}
	if !m.alive() {
		return ErrManagerDestroyed
	}
	m.notifier.Success(msgResetSent)
	return nil
}

// UpdatePassword cambia la contraseña del usuario con sesion y lo lleva al area autenticada.
func (m *SessionManager) UpdatePassword(ctx context.Context, newPassword string) error {
	if !m.alive() {
		return ErrManagerDestroyed
	}
	if strings.TrimSpace(newPassword) == "" {
		return m.invalid("password", msgMissingPassword, ErrMissingPassword)
	}

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	user, err := m.gateway.UpdateUser(ctx, gateway.UserAttributes{Password: newPassword})
	if err != nil {
		return m.fail("password update", err)
	}
	applied := m.alive()
	if user != nil {
		applied = m.dispatch(SetUser{User: user})
	}
	if !applied {
		return ErrManagerDestroyed
	}
	m.notifier.Success(msgPasswordUpdated)
	m.navigator.Navigate(m.cfg.AuthenticatedPath)
	return nil
}

// RefreshIdentity vuelve a leer perfil y suscripcion del usuario actual.
func (m *SessionManager) RefreshIdentity(ctx context.Context) error {
	m.mu.Lock()
	if !m.subscribed {
		m.mu.Unlock()
		return ErrManagerDestroyed
	}
	user := m.store.State().User
	if user == nil {
		m.mu.Unlock()
		return nil
	}
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.dispatch(SetLoading{Loading: true})
	defer m.dispatch(SetLoading{Loading: false})

	profile, subscription := m.resolveIdentity(ctx, user.ID)
	if !m.dispatchCurrent(gen, SetIdentity{User: user, Profile: profile, Subscription: subscription}) {
		return fmt.Errorf("refresh identity for %s: superseded", user.ID)
	}
	m.reportConflict(user.ID, subscription)
	return nil
}

// ClearError borra el ultimo error visible.
func (m *SessionManager) ClearError() {
	m.dispatch(ClearError{})
}

// Destroy da de baja el listener y suprime cualquier resultado posterior. Es idempotente.
func (m *SessionManager) Destroy() {
	m.mu.Lock()
	if m.phase == PhaseDestroyed {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseDestroyed
	m.subscribed = false
	listener := m.listener
	m.listener = nil
	m.mu.Unlock()

	if listener != nil {
		listener.Cancel()
	}
	m.cancel()
	m.logger.Info("session manager destroyed")
}

// Wait bloquea hasta que terminen las reacciones a eventos en curso.
func (m *SessionManager) Wait() {
	m.wg.Wait()
}

func (m *SessionManager) State() domain.IdentityState {
	return m.store.State()
}

func (m *SessionManager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Store expone el IdentityStore para suscribirse a cambios. Los suscriptores corren
// con el lock del manager tomado y no deben llamar a sus metodos.
func (m *SessionManager) Store() *IdentityStore {
	return m.store
}
