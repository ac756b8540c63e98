// Package notify entrega avisos visibles para el cliente y redirecciones de navegacion.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Level string

const (
	LevelSuccess  Level = "success"
	LevelError    Level = "error"
	LevelRedirect Level = "redirect"
)

// Notification es un aviso pendiente para la UI.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message,omitempty"`
	Target  string    `json:"target,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier muestra avisos de exito o error al usuario.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Navigator mueve al usuario a otra ruta (sign-in, area autenticada, URL de OAuth).
type Navigator interface {
	Navigate(target string)
}

// Disabled descarta todos los avisos.
type Disabled struct{}

func (Disabled) Success(string)  {}
func (Disabled) Error(string)    {}
func (Disabled) Navigate(string) {}

// LogNotifier escribe los avisos en el logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(message string) {
	n.logger.Info("notify success", zap.String("message", message))
}

func (n *LogNotifier) Error(message string) {
	n.logger.Warn("notify error", zap.String("message", message))
}

func (n *LogNotifier) Navigate(target string) {
	n.logger.Info("navigate", zap.String("target", target))
}

// Outbox acumula avisos hasta que la UI los consume con Drain.
type Outbox struct {
	mu    sync.Mutex
	max   int
	items []Notification
	now   func() time.Time
}

// NewOutbox guarda como maximo max avisos; los mas viejos se descartan.
func NewOutbox(max int) *Outbox {
	if max <= 0 {
		max = 50
	}
	return &Outbox{max: max, now: time.Now}
}

func (o *Outbox) Success(message string) {
	o.push(Notification{Level: LevelSuccess, Message: message})
}

func (o *Outbox) Error(message string) {
	o.push(Notification{Level: LevelError, Message: message})
}

func (o *Outbox) Navigate(target string) {
	o.push(Notification{Level: LevelRedirect, Target: target})
}

// Drain devuelve los avisos pendientes y vacia la cola.
func (o *Outbox) Drain() []Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.items
	o.items = nil
	return out
}

func (o *Outbox) push(n Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n.At = o.now().UTC()
	o.items = append(o.items, n)
	if len(o.items) > o.max {
		o.items = o.items[len(o.items)-o.max:]
	}
}

// Sink recibe avisos y redirecciones.
type Sink interface {
	Notifier
	Navigator
}

// Fanout reenvia cada aviso a todos sus destinos en orden.
type Fanout []Sink

func (f Fanout) Success(message string) {
	for _, s := range f {
		s.Success(message)
	}
}

func (f Fanout) Error(message string) {
	for _, s := range f {
		s.Error(message)
	}
}

func (f Fanout) Navigate(target string) {
	for _, s := range f {
		s.Navigate(target)
	}
}
