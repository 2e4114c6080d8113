// Package events routes lifecycle and download events to subscribers.
// Delivery is best-effort: a failing or panicking subscriber is logged and
// never blocks or fails the emitting operation.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category groups events by the subsystem that emitted them.
type Category string

const (
	CategoryModel    Category = "model"
	CategoryLLM      Category = "llm"
	CategorySTT      Category = "stt"
	CategoryTTS      Category = "tts"
	CategoryVAD      Category = "vad"
	CategoryDownload Category = "download"
	CategoryError    Category = "error"
)

// Destination says which sink classes an event is meant for. Chatty events
// (per-chunk progress) stay public-only; internal counters stay
// analytics-only; everything else goes to both.
type Destination int

const (
	DestinationAll Destination = iota
	DestinationPublicOnly
	DestinationAnalyticsOnly
)

// Sink is the class a subscriber registers as.
type Sink int

const (
	SinkPublic Sink = iota
	SinkAnalytics
)

// Event is one emitted occurrence.
type Event struct {
	Category    Category
	Type        string
	Destination Destination
	TimestampMS int64
	Properties  map[string]any
}

// Handler receives events. Handlers must not retain the Properties map.
type Handler func(Event)

type subscriber struct {
	id      int
	cat     Category
	sink    Sink
	handler Handler
}

// Bus is a category-routed publish/subscribe hub.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
	log    zerolog.Logger
	nowMS  func() int64
}

// NewBus returns a Bus that logs delivery failures through log.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:   log.With().Str("component", "events").Logger(),
		nowMS: func() int64 { return time.Now().UnixMilli() },
	}
}

// Subscribe registers handler for one category and sink class.
// The returned func removes the subscription; calling it twice is harmless.
func (b *Bus) Subscribe(cat Category, sink Sink, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, cat: cat, sink: sink, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers evt to matching subscribers. The subscriber list is
// snapshotted under the lock and handlers run outside it, so a handler may
// re-enter the bus without deadlocking.
func (b *Bus) Publish(evt Event) {
	if evt.TimestampMS == 0 {
		evt.TimestampMS = b.nowMS()
	}

	b.mu.Lock()
	matched := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.cat != evt.Category {
			continue
		}
		if !routesTo(evt.Destination, s.sink) {
			continue
		}
		matched = append(matched, s)
	}
	b.mu.Unlock()

	for _, s := range matched {
		b.deliver(s, evt)
	}
}

func (b *Bus) deliver(s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().
				Str("category", string(evt.Category)).
				Str("type", evt.Type).
				Any("panic", r).
				Msg("event subscriber panicked; event dropped for that subscriber")
		}
	}()
	s.handler(evt)
}

func routesTo(dest Destination, sink Sink) bool {
	switch dest {
	case DestinationPublicOnly:
		return sink == SinkPublic
	case DestinationAnalyticsOnly:
		return sink == SinkAnalytics
	default:
		return true
	}
}
