package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"story-identity/internal/domain"
	"story-identity/internal/repository"
)

// Sleeper espera d o hasta que ctx se cancele.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProfileResolver lee el perfil de un usuario reintentando fallos transitorios.
type ProfileResolver struct {
	logger   *zap.Logger
	profiles repository.ProfileRepository
	policy   RetryPolicy
	sleep    Sleeper
}

func NewProfileResolver(logger *zap.Logger, profiles repository.ProfileRepository, policy RetryPolicy) *ProfileResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileResolver{
		logger:   logger,
		profiles: profiles,
		policy:   policy,
		sleep:    sleepContext,
	}
}

// Resolve devuelve (nil, nil) si el perfil no existe. Si se agotan los intentos
// devuelve (nil, *ProfileFetchError) y quien llama sigue sin perfil.
func (r *ProfileResolver) Resolve(ctx context.Context, userID string) (*domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || r.profiles == nil {
		return nil, nil
	}

	attempts := r.policy.Attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		profile, err := r.profiles.GetByID(ctx, userID)
		if err == nil {
			return &profile, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		lastErr = err
		r.logger.Warn("profile fetch attempt failed",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts-1 {
			break
		}
		if err := r.sleep(ctx, r.policy.DelayForAttempt(attempt)); err != nil {
			return nil, &ProfileFetchError{UserID: userID, Attempts: attempt + 1, Err: err}
		}
	}
	return nil, &ProfileFetchError{UserID: userID, Attempts: attempts, Err: lastErr}
}
