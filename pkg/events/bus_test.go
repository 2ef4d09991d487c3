package events_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-sop/pkg/events"
)

func TestEmitRunsListenersInRegistrationOrder(t *testing.T) {
	bus := events.New()
	var got []string
	bus.Subscribe("partAdded", func(e events.Event) { got = append(got, "a:"+e.Payload.(string)) })
	bus.Subscribe(events.Wildcard, func(e events.Event) { got = append(got, "*:"+e.Name) })
	bus.Subscribe("partAdded", func(e events.Event) { got = append(got, "b") })
	bus.Subscribe("toolAdded", func(e events.Event) { got = append(got, "tool") })

	bus.Emit("partAdded", "p1")

	if strings.Join(got, ",") != "a:p1,*:partAdded,b" {
		t.Fatalf("unexpected dispatch order %v", got)
	}
	if bus.ListenerCount("partAdded") != 3 {
		t.Fatalf("expected 3 listeners, got %d", bus.ListenerCount("partAdded"))
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := events.New(events.WithLogger(zap.New(core)))
	var got []string
	bus.Subscribe("stateSaved", func(events.Event) { got = append(got, "first") })
	bus.Subscribe("stateSaved", func(events.Event) { panic("listener failure") })
	bus.Subscribe("stateSaved", func(events.Event) { got = append(got, "third") })

	bus.Emit("stateSaved", nil)

	if strings.Join(got, ",") != "first,third" {
		t.Fatalf("expected remaining listeners to run, got %v", got)
	}
	entries := logs.FilterMessage("event listener panicked").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged panic, got %d", len(entries))
	}
	if entries[0].ContextMap()["panic"] != "listener failure" {
		t.Fatalf("unexpected log fields %v", entries[0].ContextMap())
	}
}

func TestReentrantEmitCompletesDepthFirst(t *testing.T) {
	bus := events.New()
	var got []string
	bus.Subscribe("outer", func(events.Event) {
		got = append(got, "outer-1")
		bus.Emit("inner", nil)
	})
	bus.Subscribe("outer", func(events.Event) { got = append(got, "outer-2") })
	bus.Subscribe("inner", func(events.Event) { got = append(got, "inner") })

	bus.Emit("outer", nil)

	if strings.Join(got, ",") != "outer-1,inner,outer-2" {
		t.Fatalf("expected depth-first dispatch, got %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := events.New()
	calls := 0
	id := bus.Subscribe("x", func(events.Event) { calls++ })
	bus.Subscribe("x", func(events.Event) { calls += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatalf("expected unsubscribe to succeed")
	}
	if bus.Unsubscribe(id) {
		t.Fatalf("expected second unsubscribe to report false")
	}
	bus.Emit("x", nil)
	if calls != 10 {
		t.Fatalf("expected only remaining listener, calls=%d", calls)
	}
	if n := bus.UnsubscribeAll("x"); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	bus.Emit("x", nil)
	if calls != 10 {
		t.Fatalf("expected no listeners, calls=%d", calls)
	}
}

func TestUnsubscribeDuringEmitKeepsSnapshot(t *testing.T) {
	bus := events.New()
	var got []string
	var second events.SubscriptionID
	bus.Subscribe("x", func(events.Event) {
		got = append(got, "first")
		bus.Unsubscribe(second)
	})
	second = bus.Subscribe("x", func(events.Event) { got = append(got, "second") })

	bus.Emit("x", nil)
	bus.Emit("x", nil)

	if strings.Join(got, ",") != "first,second,first" {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestSubscribeNilListenerIsIgnored(t *testing.T) {
	bus := events.New()
	if id := bus.Subscribe("x", nil); id != 0 {
		t.Fatalf("expected zero id, got %d", id)
	}
	if bus.ListenerCount("x") != 0 {
		t.Fatalf("expected no listeners")
	}
}
