package gateway

import (
	"testing"

	"story-identity/internal/domain"
)

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	b := NewBroadcaster()
	var got []domain.AuthEventType
	b.Subscribe(func(event domain.AuthEvent) {
		got = append(got, event.Type)
	})

	b.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn})
	b.Emit(domain.AuthEvent{Type: domain.AuthEventTokenRefreshed})
	b.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})

	want := []domain.AuthEventType{domain.AuthEventSignedIn, domain.AuthEventTokenRefreshed, domain.AuthEventSignedOut}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBroadcaster_CancelStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	calls := 0
	sub := b.Subscribe(func(domain.AuthEvent) { calls++ })

	b.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn})
	sub.Cancel()
	sub.Cancel()
	b.Emit(domain.AuthEvent{Type: domain.AuthEventSignedOut})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("expected no listeners, got %d", b.Len())
	}
}

func TestBroadcaster_CancelDuringDelivery(t *testing.T) {
	b := NewBroadcaster()
	var second Subscription
	secondCalls := 0
	b.Subscribe(func(domain.AuthEvent) {
		second.Cancel()
	})
	second = b.Subscribe(func(domain.AuthEvent) { secondCalls++ })

	b.Emit(domain.AuthEvent{Type: domain.AuthEventSignedIn})

	if secondCalls != 0 {
		t.Fatalf("expected cancelled listener to be skipped, got %d calls", secondCalls)
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 listener left, got %d", b.Len())
	}
}
