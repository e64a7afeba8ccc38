package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events published on the in-process bus.
type Handler func(event EventWithData)

// Sink forwards events out of the process, e.g. to Kafka.
type Sink interface {
	Publish(ctx context.Context, event EventWithData) error
	Close() error
}

// Manager handles event emission, in-process subscribers and sinks.
// Emit never fails the caller: sink errors are logged.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	sinks    []Sink
	now      func() time.Time
	log      zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		now:      time.Now,
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// AddSink attaches an out-of-process sink.
func (m *Manager) AddSink(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Emit publishes data to subscribers and sinks. Call after the state change
// it describes has been committed.
func (m *Manager) Emit(ctx context.Context, module string, data EventData) {
	if m == nil || data == nil {
		return
	}

	event := EventWithData{
		Type:      data.EventType(),
		Timestamp: m.now().UTC(),
		Module:    module,
		Data:      data,
	}

	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[event.Type]...)
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.RUnlock()

	for _, h := range handlers {
		m.dispatch(h, event)
	}

	for _, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			m.log.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Failed to forward event to sink")
		}
	}

	m.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event emitted")
}

func (m *Manager) dispatch(h Handler, event EventWithData) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}

// Close closes every sink.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.sinks = nil
	return firstErr
}
