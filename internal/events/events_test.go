package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-rewards-api/internal/logging"
)

func TestManager_PublishDeliversToSubscribers(t *testing.T) {
	m := NewManager(true, logging.Discard())

	var (
		mu  sync.Mutex
		got []Event
	)
	m.Subscribe(EventWheelSpun, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})

	m.Publish(context.Background(), EventWheelSpun, WheelSpunData{Wheel: "booth", Points: 40})
	m.Publish(context.Background(), EventAnswerSubmitted, AnswerSubmittedData{Quiz: "ignored"})
	m.Wait()

	require.Len(t, got, 1)
	assert.Equal(t, EventWheelSpun, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, WheelSpunData{Wheel: "booth", Points: 40}, got[0].Data)
}

func TestManager_HandlerErrorsDoNotStopOthers(t *testing.T) {
	m := NewManager(true, logging.Discard())

	var calls int
	var mu sync.Mutex
	m.Subscribe(EventRedemptionRecorded, func(context.Context, Event) error {
		return errors.New("boom")
	})
	m.Subscribe(EventRedemptionRecorded, func(context.Context, Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	m.Publish(context.Background(), EventRedemptionRecorded, RedemptionRecordedData{Points: 1})
	m.Wait()
	assert.Equal(t, 1, calls)
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(false, logging.Discard())

	called := false
	m.Subscribe(EventSessionStarted, func(context.Context, Event) error {
		called = true
		return nil
	})
	m.Publish(context.Background(), EventSessionStarted, SessionStartedData{})
	m.Wait()
	assert.False(t, called)
}

func TestManager_ShutdownStopsDelivery(t *testing.T) {
	m := NewManager(true, logging.Discard())

	var mu sync.Mutex
	calls := 0
	m.Subscribe(EventSessionStarted, func(context.Context, Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	m.Shutdown()

	m.Publish(context.Background(), EventSessionStarted, SessionStartedData{})
	m.Wait()
	assert.Equal(t, 0, calls)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Publish(context.Background(), EventSessionStarted, nil)
}
