package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"story-identity/internal/domain"
)

type mockRedisKVClient struct {
	values map[string][]byte

	lastSetKey string
	lastSetTTL time.Duration
	lastDel    []string

	getErr error
	setErr error
}

func newMockRedisKVClient() *mockRedisKVClient {
	return &mockRedisKVClient{values: make(map[string][]byte)}
}

func (m *mockRedisKVClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	val, ok := m.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(val))
	return cmd
}

func (m *mockRedisKVClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.lastSetKey = key
	m.lastSetTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	switch v := value.(type) {
	case []byte:
		m.values[key] = v
	case string:
		m.values[key] = []byte(v)
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKVClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.lastDel = keys
	cmd := redis.NewIntCmd(ctx)
	for _, k := range keys {
		delete(m.values, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestMemorySessionStore_Basics(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty store, got %v (%v)", got, err)
	}

	session := &domain.Session{AccessToken: "a", User: &domain.User{ID: "u1"}}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	session.AccessToken = "mutated"

	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != "a" {
		t.Fatalf("expected stored copy, got %s", got.AccessToken)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = store.Load(ctx)
	if got != nil {
		t.Fatalf("expected nil after clear")
	}
}

func TestRedisSessionStore_SaveLoadClear(t *testing.T) {
	client := newMockRedisKVClient()
	store := newRedisSessionStore(client, "device-1")
	ctx := context.Background()

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &domain.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expires,
		User:         &domain.User{ID: "u1", Email: "user@example.com"},
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	if client.lastSetKey != "auth:session:device-1" {
		t.Fatalf("unexpected key %s", client.lastSetKey)
	}
	if client.lastSetTTL != 30*24*time.Hour {
		t.Fatalf("unexpected ttl %v", client.lastSetTTL)
	}

	var stored domain.Session
	if err := json.Unmarshal(client.values["auth:session:device-1"], &stored); err != nil {
		t.Fatalf("stored value is not json: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.User == nil || got.User.ID != "u1" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(client.lastDel) != 1 || client.lastDel[0] != "auth:session:device-1" {
		t.Fatalf("unexpected del keys %v", client.lastDel)
	}
	got, err = store.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty after clear, got %v (%v)", got, err)
	}
}

func TestRedisSessionStore_PropagatesErrors(t *testing.T) {
	client := newMockRedisKVClient()
	client.getErr = errors.New("redis down")
	client.setErr = errors.New("redis down")
	store := newRedisSessionStore(client, "")

	if _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if err := store.Save(context.Background(), &domain.Session{AccessToken: "a"}); err == nil {
		t.Fatalf("expected save error")
	}
	if store.key != "auth:session:default" {
		t.Fatalf("expected default key, got %s", store.key)
	}
}

func TestNewRedisSessionStore_NilClient(t *testing.T) {
	if store := NewRedisSessionStore(nil, "x"); store != nil {
		t.Fatalf("expected nil store for nil client")
	}
}
