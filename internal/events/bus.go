// Package events delivers appointment events to subscribers in the background.
// Publishing never blocks the request that produced the event.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"go.uber.org/zap"
)

var ErrBusClosed = errors.New("event bus is closed")

// Handler обрабатывает одно событие
type Handler func(ctx context.Context, event model.Event) error

type Config struct {
	// QueueSize bounds the number of undelivered events. Extra events are dropped.
	QueueSize int
	// Workers is the number of goroutines running handlers.
	Workers int
	// HandlerTimeout limits a single handler call.
	HandlerTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		Workers:        4,
		HandlerTimeout: 10 * time.Second,
	}
}

// Bus is an in-memory fan-out of model.Event with a bounded queue.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[model.EventType][]Handler
	allHandlers []Handler
	queue       chan model.Event
	closed      bool
	wg          sync.WaitGroup
	cfg         Config
	logger      *zap.Logger
}

func NewBus(cfg Config, logger *zap.Logger) *Bus {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}

	b := &Bus{
		handlers: make(map[model.EventType][]Handler),
		queue:    make(chan model.Event, cfg.QueueSize),
		cfg:      cfg,
		logger:   logger,
	}

	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	return b
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish ставит событие в очередь. Если очередь переполнена, событие теряется.
func (b *Bus) Publish(event model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("Event dropped: bus closed",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.AppointmentID),
		)
		return
	}

	select {
	case b.queue <- event:
	default:
		b.logger.Warn("Event dropped: queue full",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.AppointmentID),
			zap.Int("queue_size", b.cfg.QueueSize),
		)
	}
}

// Close stops accepting events and waits until the queued ones are handled or ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain event queue: %w", ctx.Err())
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for event := range b.queue {
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event model.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.run(event, h)
	}
}

func (b *Bus) run(event model.Event, h Handler) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HandlerTimeout)
	defer cancel()

	// Паника в подписчике не должна останавливать воркер
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	if err := h(ctx, event); err != nil {
		b.logger.Error("Event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.AppointmentID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
}
