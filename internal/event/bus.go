package event

import (
	"context"
	"sync"
	"sync/atomic"

	"livedirs/internal/buffer"
	"livedirs/internal/metrics"
)

const defaultSubscriberBufferSize = 128

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	MaxSubscribers       int
	HistorySize          int
	Registry             *metrics.Registry
}

// Bus fans values out to subscribers. Publishing never blocks: a
// subscriber whose channel is full misses the value and the drop is
// counted.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextSubID   atomic.Uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	registry    *metrics.Registry
	history     *buffer.Ring[T]
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

func NewBus[T any](ctx context.Context, options BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if options.SubscriberBufferSize <= 0 {
		options.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     options,
		registry:    options.Registry,
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if options.HistorySize > 0 {
		bus.history = buffer.NewRing[T](options.HistorySize)
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (bus *Bus[T]) Subscribe() (<-chan T, func()) {
	return bus.SubscribeFiltered(nil)
}

func (bus *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if bus == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, bus.options.SubscriberBufferSize)
	id := bus.nextSubID.Add(1)

	bus.mu.Lock()
	if bus.closed || (bus.options.MaxSubscribers > 0 && len(bus.subscribers) >= bus.options.MaxSubscribers) {
		bus.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	bus.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	count := len(bus.subscribers)
	bus.mu.Unlock()

	bus.registry.SetBusSubscribers(bus.name(), count)

	return ch, func() {
		bus.removeSubscriber(id)
	}
}

func (bus *Bus[T]) Publish(value T) {
	if bus == nil {
		return
	}

	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return
	}
	if bus.history != nil {
		bus.history.Add(value)
	}
	subscribers := make([]subscription[T], 0, len(bus.subscribers))
	for _, sub := range bus.subscribers {
		subscribers = append(subscribers, sub)
	}
	bus.mu.Unlock()

	bus.registry.IncBusPublished(bus.name())
	if typed, ok := any(value).(Event); ok {
		bus.registry.IncBusEvent(bus.name(), typed.Type())
	}

	for _, sub := range subscribers {
		if sub.filter != nil && !sub.filter(value) {
			continue
		}
		select {
		case sub.ch <- value:
		default:
			bus.registry.IncBusDropped(bus.name())
		}
	}
}

func (bus *Bus[T]) Close() {
	if bus == nil {
		return
	}
	bus.closeOnce.Do(func() {
		bus.mu.Lock()
		bus.closed = true
		subscribers := bus.subscribers
		bus.subscribers = make(map[uint64]subscription[T])
		bus.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
		bus.registry.SetBusSubscribers(bus.name(), 0)
	})
}

// History returns the most recent published values, oldest first.
func (bus *Bus[T]) History(count int) []T {
	if bus == nil {
		return nil
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.history.Last(count)
}

func (bus *Bus[T]) SubscriberCount() int {
	if bus == nil {
		return 0
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return len(bus.subscribers)
}

func (bus *Bus[T]) removeSubscriber(id uint64) {
	bus.mu.Lock()
	sub, ok := bus.subscribers[id]
	if ok {
		delete(bus.subscribers, id)
	}
	count := len(bus.subscribers)
	bus.mu.Unlock()

	if ok {
		close(sub.ch)
		bus.registry.SetBusSubscribers(bus.name(), count)
	}
}

func (bus *Bus[T]) name() string {
	if bus.options.Name == "" {
		return "event_bus"
	}
	return bus.options.Name
}
