package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio de identidad.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Gateway remoto compatible con GoTrue. Vacio usa el gateway local en memoria.
	AuthGatewayURL    string `env:"AUTH_GATEWAY_URL"`
	AuthGatewayAPIKey string `env:"AUTH_GATEWAY_API_KEY"`
	AuthRedirectURL   string `env:"AUTH_REDIRECT_URL" envDefault:"http://localhost:3000/auth/callback"`
	SessionStorageKey string `env:"SESSION_STORAGE_KEY" envDefault:"default"`

	AuthenticatedPath string `env:"AUTHENTICATED_PATH" envDefault:"/dashboard"`
	SignInPath        string `env:"SIGN_IN_PATH" envDefault:"/login"`

	LocalJWTSecret string        `env:"LOCAL_JWT_SECRET" envDefault:"local-dev-secret"`
	LocalAccessTTL time.Duration `env:"LOCAL_ACCESS_TTL" envDefault:"1h"`
	AutoConfirm    bool          `env:"LOCAL_AUTO_CONFIRM" envDefault:"true"`

	SignInRateWindow time.Duration `env:"SIGN_IN_RATE_WINDOW" envDefault:"1m"`
	SignInRateMax    int           `env:"SIGN_IN_RATE_MAX" envDefault:"5"`

	ProfileRetryBase        time.Duration `env:"PROFILE_RETRY_BASE" envDefault:"1s"`
	ProfileRetryCap         time.Duration `env:"PROFILE_RETRY_CAP" envDefault:"5s"`
	ProfileRetryMaxAttempts int           `env:"PROFILE_RETRY_MAX_ATTEMPTS" envDefault:"3"`

	// SMTP para los correos del gateway local. Vacio no envia correos.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
