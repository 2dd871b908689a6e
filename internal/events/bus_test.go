package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func event(t model.EventType, id string) model.Event {
	return model.Event{ID: "evt-" + id, Type: t, AppointmentID: id, OccurredAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func TestBus_DeliversByType(t *testing.T) {
	bus := NewBus(Config{QueueSize: 8, Workers: 2}, zap.NewNop())

	var (
		mu      sync.Mutex
		created []string
		all     []string
	)
	require.NoError(t, bus.Subscribe(model.EventAppointmentCreated, func(_ context.Context, e model.Event) error {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, e.AppointmentID)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, e model.Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.AppointmentID)
		return nil
	}))

	bus.Publish(event(model.EventAppointmentCreated, "a"))
	bus.Publish(event(model.EventAppointmentStatusUpdated, "b"))
	require.NoError(t, bus.Close(context.Background()))

	assert.Equal(t, []string{"a"}, created)
	assert.ElementsMatch(t, []string{"a", "b"}, all)
}

func TestBus_PublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus(Config{QueueSize: 1, Workers: 1}, zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var (
		mu      sync.Mutex
		handled int
	)
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, _ model.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}))

	bus.Publish(event(model.EventAppointmentCreated, "1"))
	<-started // воркер занят первым событием

	done := make(chan struct{})
	go func() {
		bus.Publish(event(model.EventAppointmentCreated, "2")) // в очередь
		bus.Publish(event(model.EventAppointmentCreated, "3")) // отброшено
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(release)
	require.NoError(t, bus.Close(context.Background()))
	assert.Equal(t, 2, handled)
}

func TestBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewBus(Config{QueueSize: 4, Workers: 1}, zap.NewNop())

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, e model.Event) error {
		if e.AppointmentID == "panic" {
			panic("boom")
		}
		return errors.New("handler failed")
	}))
	require.NoError(t, bus.SubscribeAll(func(_ context.Context, e model.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.AppointmentID)
		return nil
	}))

	bus.Publish(event(model.EventAppointmentCreated, "panic"))
	bus.Publish(event(model.EventAppointmentCreated, "ok"))
	require.NoError(t, bus.Close(context.Background()))

	assert.Equal(t, []string{"panic", "ok"}, seen)
}

func TestBus_Closed(t *testing.T) {
	bus := NewBus(DefaultConfig(), zap.NewNop())
	require.NoError(t, bus.Close(context.Background()))
	require.NoError(t, bus.Close(context.Background()))

	assert.ErrorIs(t, bus.SubscribeAll(func(context.Context, model.Event) error { return nil }), ErrBusClosed)
	assert.NotPanics(t, func() { bus.Publish(event(model.EventAppointmentCreated, "late")) })
}

func TestBus_CloseRespectsContext(t *testing.T) {
	bus := NewBus(Config{QueueSize: 1, Workers: 1}, zap.NewNop())
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, bus.SubscribeAll(func(context.Context, model.Event) error {
		<-release
		return nil
	}))
	bus.Publish(event(model.EventAppointmentCreated, "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Close(ctx), context.DeadlineExceeded)
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPSink_Handle(t *testing.T) {
	ch := &fakeChannel{}
	sink := &AMQPSink{ch: ch, exchange: "appointments"}

	e := event(model.EventAppointmentStatusUpdated, "appt-1")
	e.OldStatus = model.AppointmentStatusScheduled
	e.NewStatus = model.AppointmentStatusCancelled
	require.NoError(t, sink.Handle(context.Background(), e))

	assert.Equal(t, "appointments", ch.exchange)
	assert.Equal(t, "appointment.status_updated", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "evt-appt-1", ch.msg.MessageId)

	var decoded model.Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, model.AppointmentStatusCancelled, decoded.NewStatus)
	assert.Equal(t, "appt-1", decoded.AppointmentID)

	ch.err = errors.New("channel closed")
	err := sink.Handle(context.Background(), e)
	assert.ErrorIs(t, err, ch.err)
	assert.NoError(t, sink.Close())
}
