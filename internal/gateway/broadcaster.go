package gateway

import (
	"sync"

	"github.com/google/uuid"

	"story-identity/internal/domain"
)

// Listener recibe los eventos de cambio de sesion.
type Listener func(event domain.AuthEvent)

// Subscription es el handle de un listener registrado. Cancel es idempotente.
type Subscription interface {
	Cancel()
}

// Broadcaster entrega eventos a los listeners en el orden en que se emiten.
// Emit es serializado: un evento no empieza a entregarse hasta que termina el anterior.
type Broadcaster struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	order     []string
	listeners map[string]Listener
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[string]Listener)}
}

func (b *Broadcaster) Subscribe(listener Listener) Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.listeners[id] = listener
	b.order = append(b.order, id)
	b.mu.Unlock()
	return &subscription{broadcaster: b, id: id}
}

func (b *Broadcaster) Emit(event domain.AuthEvent) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	ids := make([]string, len(b.order))
	copy(ids, b.order)
	b.mu.Unlock()

	for _, id := range ids {
		// Un listener cancelado durante la entrega ya no recibe el evento.
		b.mu.Lock()
		listener, ok := b.listeners[id]
		b.mu.Unlock()
		if !ok {
			continue
		}
		listener(event)
	}
}

// Len devuelve la cantidad de listeners activos.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

type subscription struct {
	once        sync.Once
	broadcaster *Broadcaster
	id          string
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.broadcaster.remove(s.id)
	})
}
