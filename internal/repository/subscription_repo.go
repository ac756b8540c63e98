package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"story-identity/internal/domain"
)

// SubscriptionRepository lista todas las filas de suscripcion de un usuario.
// No filtra a una sola fila: la cardinalidad la decide quien consume.
type SubscriptionRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]domain.Subscription, error)
}

type PgSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSubscriptionRepository(pool *pgxpool.Pool) *PgSubscriptionRepository {
	return &PgSubscriptionRepository{pool: pool}
}

func (r *PgSubscriptionRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Subscription, error) {
	const query = `
		SELECT id, user_id, status, plan_id, subscription_start, subscription_end, trial_end,
		       COALESCE(payment_provider, ''), COALESCE(payment_provider_id, '')
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY subscription_start NULLS LAST
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Subscription, error) {
		var sub domain.Subscription
		err := row.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.Status,
			&sub.PlanID,
			&sub.SubscriptionStart,
			&sub.SubscriptionEnd,
			&sub.TrialEnd,
			&sub.PaymentProvider,
			&sub.PaymentProviderID,
		)
		return sub, err
	})
}
