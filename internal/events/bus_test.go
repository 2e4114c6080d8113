package events

import (
	"testing"

	"github.com/rs/zerolog"
)

func testBus() *Bus {
	return NewBus(zerolog.Nop())
}

func TestPublishRoutesByCategory(t *testing.T) {
	b := testBus()
	var gotModel, gotDownload int
	b.Subscribe(CategoryModel, SinkPublic, func(Event) { gotModel++ })
	b.Subscribe(CategoryDownload, SinkPublic, func(Event) { gotDownload++ })

	b.Publish(Event{Category: CategoryModel, Type: "load.completed"})
	if gotModel != 1 || gotDownload != 0 {
		t.Fatalf("expected model-only delivery, got model=%d download=%d", gotModel, gotDownload)
	}
}

func TestDestinationRouting(t *testing.T) {
	b := testBus()
	var public, analytics int
	b.Subscribe(CategoryDownload, SinkPublic, func(Event) { public++ })
	b.Subscribe(CategoryDownload, SinkAnalytics, func(Event) { analytics++ })

	b.Publish(Event{Category: CategoryDownload, Type: "progress", Destination: DestinationPublicOnly})
	b.Publish(Event{Category: CategoryDownload, Type: "speech.started", Destination: DestinationAnalyticsOnly})
	b.Publish(Event{Category: CategoryDownload, Type: "state_changed", Destination: DestinationAll})

	if public != 2 {
		t.Fatalf("public sink should see public-only + all, got %d", public)
	}
	if analytics != 2 {
		t.Fatalf("analytics sink should see analytics-only + all, got %d", analytics)
	}
}

func TestSubscriberPanicDoesNotPropagate(t *testing.T) {
	b := testBus()
	var after int
	b.Subscribe(CategoryModel, SinkPublic, func(Event) { panic("boom") })
	b.Subscribe(CategoryModel, SinkPublic, func(Event) { after++ })

	b.Publish(Event{Category: CategoryModel, Type: "loaded"})
	if after != 1 {
		t.Fatalf("panicking subscriber must not block later subscribers, after=%d", after)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := testBus()
	var got int
	off := b.Subscribe(CategoryModel, SinkPublic, func(Event) { got++ })
	b.Publish(Event{Category: CategoryModel, Type: "loaded"})
	off()
	off() // second call is harmless
	b.Publish(Event{Category: CategoryModel, Type: "loaded"})
	if got != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", got)
	}
}

func TestTimestampAssigned(t *testing.T) {
	b := testBus()
	b.nowMS = func() int64 { return 42 }
	var got Event
	b.Subscribe(CategoryModel, SinkPublic, func(e Event) { got = e })
	b.Publish(Event{Category: CategoryModel, Type: "loaded"})
	if got.TimestampMS != 42 {
		t.Fatalf("expected timestamp 42, got %d", got.TimestampMS)
	}
}

func TestReentrantHandlerDoesNotDeadlock(t *testing.T) {
	b := testBus()
	var inner int
	b.Subscribe(CategoryModel, SinkPublic, func(e Event) {
		if e.Type == "outer" {
			b.Publish(Event{Category: CategoryModel, Type: "inner"})
		} else {
			inner++
		}
	})
	b.Publish(Event{Category: CategoryModel, Type: "outer"})
	if inner != 1 {
		t.Fatalf("re-entrant publish lost, inner=%d", inner)
	}
}
