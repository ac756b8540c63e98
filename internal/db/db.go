package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"story-identity/internal/config"
)

// ErrNoDatabaseURL indica que no hay base configurada; los binarios usan repositorios en memoria.
var ErrNoDatabaseURL = errors.New("database url not configured")

const (
	applicationName = "story-identity"
	pingTimeout     = 3 * time.Second
)

// identityPoolConfig arma la configuracion del pool para lecturas de perfil y suscripcion.
// Las sesiones quedan en solo lectura: este cliente nunca escribe en esas tablas.
func identityPoolConfig(databaseURL string) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, ErrNoDatabaseURL
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 4
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = 2 * time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	params := poolCfg.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
	params["default_transaction_read_only"] = "on"
	return poolCfg, nil
}

// NewPool abre el pool y comprueba que la base responde antes de devolverlo.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := identityPoolConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
