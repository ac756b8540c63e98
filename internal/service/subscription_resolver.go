package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"story-identity/internal/domain"
	"story-identity/internal/repository"
)

type SubscriptionKind string

const (
	SubscriptionNone     SubscriptionKind = "none"
	SubscriptionOK       SubscriptionKind = "ok"
	SubscriptionConflict SubscriptionKind = "conflict"
)

// SubscriptionResult es el resultado de reducir las filas de un usuario a un estado logico.
type SubscriptionResult struct {
	Kind         SubscriptionKind
	Subscription *domain.Subscription
	Count        int
}

// Err devuelve el error de integridad para un conflicto, o nil.
func (r SubscriptionResult) Err(userID string) error {
	if r.Kind != SubscriptionConflict {
		return nil
	}
	return &SubscriptionConflictError{UserID: userID, Count: r.Count}
}

// SubscriptionResolver aplica la regla de cardinalidad: 0 filas none, 1 ok, mas de 1 conflict.
type SubscriptionResolver struct {
	logger        *zap.Logger
	subscriptions repository.SubscriptionRepository
}

func NewSubscriptionResolver(logger *zap.Logger, subscriptions repository.SubscriptionRepository) *SubscriptionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionResolver{logger: logger, subscriptions: subscriptions}
}

func (r *SubscriptionResolver) Resolve(ctx context.Context, userID string) (SubscriptionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || r.subscriptions == nil {
		return SubscriptionResult{Kind: SubscriptionNone}, nil
	}

	rows, err := r.subscriptions.ListByUserID(ctx, userID)
	if err != nil {
		return SubscriptionResult{}, err
	}

	switch len(rows) {
	case 0:
		return SubscriptionResult{Kind: SubscriptionNone}, nil
	case 1:
		sub := rows[0]
		return SubscriptionResult{Kind: SubscriptionOK, Subscription: &sub, Count: 1}, nil
	default:
		// Nunca elegimos una fila: es un problema de datos que requiere soporte.
		r.logger.Error("multiple subscriptions for user",
			zap.String("user_id", userID),
			zap.Int("count", len(rows)),
		)
		return SubscriptionResult{Kind: SubscriptionConflict, Count: len(rows)}, nil
	}
}
