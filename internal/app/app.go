// Package app arma el grafo de dependencias comun a los binarios.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"story-identity/internal/config"
	"story-identity/internal/db"
	"story-identity/internal/email"
	"story-identity/internal/gateway"
	"story-identity/internal/notify"
	"story-identity/internal/repository"
	"story-identity/internal/service"
)

// App agrupa el SessionManager y lo que hay que cerrar al salir.
type App struct {
	Manager *service.SessionManager
	Gateway gateway.Gateway
	Outbox  *notify.Outbox

	// Local y Memory solo se completan en modo desarrollo (sin gateway remoto o sin base).
	Local  *gateway.LocalGateway
	Memory *repository.MemoryStore

	closers []func()
}

// Build conecta Postgres y Redis si estan configurados y cae a memoria si no.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Outbox: notify.NewOutbox(100)}

	var (
		profiles      repository.ProfileRepository
		subscriptions repository.SubscriptionRepository
	)
	pool, err := db.NewPool(ctx, cfg)
	switch {
	case errors.Is(err, db.ErrNoDatabaseURL):
		logger.Info("database not configured, using in-memory profiles")
		a.Memory = repository.NewMemoryStore()
		profiles, subscriptions = a.Memory, a.Memory
	case err != nil:
		return nil, err
	default:
		a.closers = append(a.closers, pool.Close)
		profiles = repository.NewPgProfileRepository(pool)
		subscriptions = repository.NewPgSubscriptionRepository(pool)
	}

	var (
		sessionStore gateway.SessionStore
		limiter      gateway.AttemptLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, session kept in memory", zap.Error(err))
			_ = redisClient.Close()
		} else {
			sessionStore = gateway.NewRedisSessionStore(redisClient, cfg.SessionStorageKey)
			limiter = gateway.NewRedisAttemptLimiter(redisClient, cfg.SignInRateWindow, cfg.SignInRateMax)
			a.closers = append(a.closers, func() { _ = redisClient.Close() })
		}
		cancel()
	}

	if cfg.AuthGatewayURL != "" {
		a.Gateway = gateway.NewHTTPGateway(cfg.AuthGatewayURL, cfg.AuthGatewayAPIKey, sessionStore, logger)
	} else {
		logger.Warn("auth gateway url not configured, using local gateway")
		if limiter == nil {
			limiter = gateway.NewMemoryAttemptLimiter(cfg.SignInRateWindow, cfg.SignInRateMax)
		}
		opts := []gateway.LocalOption{
			gateway.WithAutoConfirm(cfg.AutoConfirm),
			gateway.WithLocalSessionStore(sessionStore),
			gateway.WithSignInLimiter(limiter),
		}
		if cfg.SMTPHost != "" {
			sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
			if err != nil {
				logger.Warn("smtp sender init failed", zap.Error(err))
			} else {
				opts = append(opts, gateway.WithMailer(sender))
			}
		}
		a.Local = gateway.NewLocalGateway(cfg.LocalJWTSecret, cfg.LocalAccessTTL, opts...)
		a.Gateway = a.Local
	}

	policy := service.RetryPolicy{
		Base:        cfg.ProfileRetryBase,
		Cap:         cfg.ProfileRetryCap,
		MaxAttempts: cfg.ProfileRetryMaxAttempts,
	}
	sink := notify.Fanout{a.Outbox, notify.NewLogNotifier(logger)}
	a.Manager = service.NewSessionManager(
		logger,
		a.Gateway,
		service.NewProfileResolver(logger, profiles, policy),
		service.NewSubscriptionResolver(logger, subscriptions),
		service.NewIdentityStore(),
		sink,
		sink,
		service.SessionManagerConfig{
			RedirectURL:       cfg.AuthRedirectURL,
			AuthenticatedPath: cfg.AuthenticatedPath,
			SignInPath:        cfg.SignInPath,
		},
	)
	return a, nil
}

// Close desmonta el manager y libera conexiones en orden inverso.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Destroy()
		a.Manager.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
