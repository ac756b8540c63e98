package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"story-identity/internal/domain"
)

// MemoryStore guarda perfiles y suscripciones en memoria para desarrollo local.
// Implementa ProfileRepository y SubscriptionRepository con la misma semantica que Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	profiles      map[string]domain.UserProfile
	subscriptions map[string][]domain.Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]domain.UserProfile),
		subscriptions: make(map[string][]domain.Subscription),
	}
}

func (m *MemoryStore) PutProfile(profile domain.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = profile
}

// AddSubscription agrega una fila sin validar duplicados, igual que una tabla sin unique.
func (m *MemoryStore) AddSubscription(sub domain.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.UserID] = append(m.subscriptions[sub.UserID], sub)
}

func (m *MemoryStore) GetByID(_ context.Context, userID string) (domain.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return domain.UserProfile{}, pgx.ErrNoRows
	}
	return profile, nil
}

func (m *MemoryStore) ListByUserID(_ context.Context, userID string) ([]domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.subscriptions[userID]
	out := make([]domain.Subscription, len(rows))
	copy(out, rows)
	return out, nil
}
