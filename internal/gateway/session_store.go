package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"story-identity/internal/domain"
)

// SessionStore persiste la sesion actual del cliente. Load devuelve (nil, nil) si no hay.
type SessionStore interface {
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Clear(ctx context.Context) error
}

type memorySessionStore struct {
	mu      sync.Mutex
	session *domain.Session
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{}
}

func (s *memorySessionStore) Load(_ context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *memorySessionStore) Save(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session == nil {
		s.session = nil
		return nil
	}
	cp := *session
	s.session = &cp
	return nil
}

func (s *memorySessionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionStore struct {
	client redisKV
	key    string
	// refreshGrace mantiene la sesion mas alla del vencimiento del access token
	// para poder refrescarla con el refresh token.
	refreshGrace time.Duration
}

// NewRedisSessionStore guarda la sesion serializada en JSON bajo auth:session:<storageKey>.
func NewRedisSessionStore(client *redis.Client, storageKey string) SessionStore {
	if client == nil {
		return nil
	}
	return newRedisSessionStore(client, storageKey)
}

func newRedisSessionStore(client redisKV, storageKey string) *redisSessionStore {
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		storageKey = "default"
	}
	return &redisSessionStore{
		client:       client,
		key:          "auth:session:" + storageKey,
		refreshGrace: 30 * 24 * time.Hour,
	}
}

func (s *redisSessionStore) Load(ctx context.Context) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *redisSessionStore) Save(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.key, payload, s.refreshGrace).Err()
}

func (s *redisSessionStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.key).Err()
}
