package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus is shutting down")

// ErrBufferFull is returned by Publish when the event was dropped.
var ErrBufferFull = errors.New("event buffer is full")

// EventHandler is a function that handles document events
type EventHandler func(ctx context.Context, event *DocumentEvent) error

// Subscription represents an event subscription. Each subscription has its
// own goroutine, so handlers of one subscription run in publish order.
type Subscription struct {
	ID         string
	EventTypes []EventType
	Handler    EventHandler
	BufferSize int
	channel    chan *DocumentEvent
	done       chan struct{}
}

// EventBus manages pub/sub for document events
type EventBus struct {
	mu             sync.RWMutex
	subscriptions  map[string]*Subscription
	eventBuffer    chan *DocumentEvent
	workers        int
	closed         bool
	wg             sync.WaitGroup
	counters       busCounters
	DeliverTimeout time.Duration
	HandlerTimeout time.Duration
}

// EventBusStats tracks event bus statistics
type EventBusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	EventsFailed      int64 `json:"events_failed"`
	EventsDropped     int64 `json:"events_dropped"`
	ActiveSubscribers int64 `json:"active_subscribers"`
	EventsInBuffer    int64 `json:"events_in_buffer"`
}

type busCounters struct {
	published, delivered, failed, dropped, subscribers atomic.Int64
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize, workers int) *EventBus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	eb := &EventBus{
		subscriptions:  make(map[string]*Subscription),
		eventBuffer:    make(chan *DocumentEvent, bufferSize),
		workers:        workers,
		DeliverTimeout: 5 * time.Second,
		HandlerTimeout: 30 * time.Second,
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	log.Info().
		Int("buffer_size", bufferSize).
		Int("workers", workers).
		Msg("Event bus started")

	return eb
}

// Publish queues an event without blocking. A full buffer drops the event.
func (eb *EventBus) Publish(event *DocumentEvent) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return ErrBusClosed
	}

	select {
	case eb.eventBuffer <- event:
		eb.counters.published.Add(1)
		return nil
	default:
		eb.counters.dropped.Add(1)
		log.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Event dropped due to full buffer")
		return ErrBufferFull
	}
}

// Subscribe creates a new subscription for specific event types
func (eb *EventBus) Subscribe(eventTypes []EventType, handler EventHandler, bufferSize int) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if bufferSize < 1 {
		bufferSize = 1
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{
		ID:         "sub_" + uuid.New().String(),
		EventTypes: eventTypes,
		Handler:    handler,
		BufferSize: bufferSize,
		channel:    make(chan *DocumentEvent, bufferSize),
		done:       make(chan struct{}),
	}
	eb.subscriptions[sub.ID] = sub
	go eb.run(sub)

	eb.counters.subscribers.Add(1)

	log.Info().
		Str("subscription_id", sub.ID).
		Interface("event_types", eventTypes).
		Int("buffer_size", bufferSize).
		Msg("New subscription created")

	return sub, nil
}

// Unsubscribe removes a subscription and waits for its pending events.
func (eb *EventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	sub, exists := eb.subscriptions[subscriptionID]
	if !exists {
		eb.mu.Unlock()
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	close(sub.channel)
	eb.mu.Unlock()

	<-sub.done

	eb.counters.subscribers.Add(-1)

	log.Info().Str("subscription_id", subscriptionID).Msg("Subscription removed")
	return nil
}

// Close stops accepting events, delivers what is already queued and waits
// for every handler to return.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	close(eb.eventBuffer)
	eb.mu.Unlock()

	eb.wg.Wait()

	eb.mu.Lock()
	subs := make([]*Subscription, 0, len(eb.subscriptions))
	for id, sub := range eb.subscriptions {
		close(sub.channel)
		subs = append(subs, sub)
		delete(eb.subscriptions, id)
	}
	eb.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}

	eb.counters.subscribers.Store(0)

	log.Info().Msg("Event bus shut down")
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	return EventBusStats{
		EventsPublished:   eb.counters.published.Load(),
		EventsDelivered:   eb.counters.delivered.Load(),
		EventsFailed:      eb.counters.failed.Load(),
		EventsDropped:     eb.counters.dropped.Load(),
		ActiveSubscribers: eb.counters.subscribers.Load(),
		EventsInBuffer:    int64(len(eb.eventBuffer)),
	}
}

// worker moves events from the shared buffer to matching subscriptions.
func (eb *EventBus) worker(workerID int) {
	defer eb.wg.Done()

	log.Debug().Int("worker_id", workerID).Msg("Event bus worker started")
	for event := range eb.eventBuffer {
		eb.deliverEvent(event)
	}
	log.Debug().Int("worker_id", workerID).Msg("Event bus worker stopping")
}

// deliverEvent hands an event to every matching subscription. The read lock
// is held so Unsubscribe cannot close a channel mid-send.
func (eb *EventBus) deliverEvent(event *DocumentEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscriptions {
		if !sub.matches(event.Type) {
			continue
		}

		timer := time.NewTimer(eb.DeliverTimeout)
		select {
		case sub.channel <- event:
			timer.Stop()
		case <-timer.C:
			eb.counters.failed.Add(1)
			log.Warn().
				Str("subscription_id", sub.ID).
				Str("event_id", event.ID).
				Msg("Event delivery timeout")
		}
	}
}

// run calls the subscription handler for each queued event.
func (eb *EventBus) run(sub *Subscription) {
	defer close(sub.done)

	for event := range sub.channel {
		ctx, cancel := context.WithTimeout(context.Background(), eb.HandlerTimeout)
		err := sub.Handler(ctx, event)
		cancel()

		if err == nil {
			eb.counters.delivered.Add(1)
			continue
		}
		eb.counters.failed.Add(1)
		log.Error().
			Err(err).
			Str("subscription_id", sub.ID).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Event handler failed")
	}
}

func (s *Subscription) matches(eventType EventType) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
