package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(JobPhase, JobPhaseEvent{From: "Ramping", To: "Stabilizing", Ts: 123})

	select {
	case ev := <-ch:
		if ev.Name != JobPhase {
			t.Fatalf("expected event name %q, got %q", JobPhase, ev.Name)
		}
		payload, err := DecodeAs[JobPhaseEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs failed: %v", err)
		}
		if payload.From != "Ramping" || payload.To != "Stabilizing" || payload.Ts != 123 {
			t.Fatalf("unexpected payload: %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(TempSample, TempSampleEvent{Kelvin: float64(i)})
	}

	// The buffer holds the first subscriberBuffer events; the rest must have
	// been dropped without blocking Publish.
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, received)
			}
			return
		}
	}
}

func TestPublishNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(JobAction, JobActionEvent{Action: "start"}) // must not panic
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}

	// A second Unsubscribe must be a no-op.
	h.Unsubscribe(ch)
}
