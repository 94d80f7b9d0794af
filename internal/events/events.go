package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-rewards-api/internal/logging"
)

// EventType represents the type of event.
type EventType string

const (
	// EventSessionStarted is emitted when a request arrives without a token
	EventSessionStarted EventType = "session.started"
	// EventAnswerSubmitted is emitted when a question is answered
	EventAnswerSubmitted EventType = "answer.submitted"
	// EventWheelSpun is emitted when a wheel is spun for the first time
	EventWheelSpun EventType = "wheel.spun"
	// EventRedemptionRecorded is emitted after a checkout, written or not
	EventRedemptionRecorded EventType = "redemption.recorded"
)

// Event represents an event in the system.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// SessionStartedData contains data for session started events.
type SessionStartedData struct {
	UserID string
}

// AnswerSubmittedData contains data for answer submitted events.
type AnswerSubmittedData struct {
	UserID  string
	Quiz    string
	Index   int
	Correct bool
}

// WheelSpunData contains data for wheel spun events.
type WheelSpunData struct {
	UserID string
	Wheel  string
	Points uint32
}

// RedemptionRecordedData contains data for redemption events.
type RedemptionRecordedData struct {
	UserID   string
	Points   uint32
	Codes    []string
	Recorded bool
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   logging.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager. Handler errors are logged to
// logger.
func NewManager(enabled bool, logger logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run on
// their own goroutines with a context detached from the request.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if m == nil {
		return
	}

	m.mu.RLock()
	enabled := m.enabled
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(ctx, event); err != nil {
				m.logger.Warn(ctx, "event handler failed", "event_id", event.ID, "type", string(event.Type), "error", err)
			}
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops publishing and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}

// LogHandler returns a handler that writes every event to logger.
func LogHandler(logger logging.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		logger.Info(ctx, "event", "event_id", event.ID, "type", string(event.Type), "data", event.Data)
		return nil
	}
}
