package service

import (
	"sync"

	"story-identity/internal/domain"
)

// IdentityStore guarda el IdentityState y lo cambia solo via Dispatch.
// Los punteros del estado devuelto son compartidos y de solo lectura.
type IdentityStore struct {
	mu    sync.RWMutex
	state identityState

	// notifyMu serializa reduccion y aviso para que los suscriptores vean el orden real.
	notifyMu  sync.Mutex
	listeners map[int]func(domain.IdentityState)
	nextID    int
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{listeners: make(map[int]func(domain.IdentityState))}
}

// Dispatch aplica la accion y avisa a los suscriptores. Un suscriptor no debe llamar a Dispatch.
func (s *IdentityStore) Dispatch(action Action) domain.IdentityState {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = reduceIdentity(s.state, action)
	view := s.state.view
	listeners := make([]func(domain.IdentityState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
	return view
}

func (s *IdentityStore) State() domain.IdentityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.view
}

// Subscribe registra fn para cada nuevo estado. Devuelve la funcion para darse de baja.
func (s *IdentityStore) Subscribe(fn func(domain.IdentityState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
