package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"story-identity/internal/domain"
)

// ProfileRepository obtiene perfiles por id de usuario. Sin fila devuelve pgx.ErrNoRows.
type ProfileRepository interface {
	GetByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

func (r *PgProfileRepository) GetByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	const query = `
		SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(avatar_url, ''),
		       COALESCE(subscription_tier, ''), created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	var profile domain.UserProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.Name,
		&profile.Email,
		&profile.AvatarURL,
		&profile.SubscriptionTier,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, err
	}
	return profile, err
}
