package server

import (
	"testing"
	"time"
)

func TestEventBroadcaster_SubscribeAndBroadcast(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	other := eb.Subscribe("job-2")

	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateRunning, Iteration: 3, Energy: 1.5})

	select {
	case event := <-ch:
		if event.Iteration != 3 || event.Energy != 1.5 {
			t.Errorf("Unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected event for job-1")
	}

	select {
	case event := <-other:
		t.Errorf("job-2 should not receive job-1 events, got %+v", event)
	default:
	}
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job-1", Iteration: 7})
	ch := eb.Subscribe("job-1")

	event := <-ch
	if event.Iteration != 7 {
		t.Errorf("Expected replay of iteration 7, got %d", event.Iteration)
	}
}

func TestEventBroadcaster_FullChannelDoesNotBlock(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Subscribe("job-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			eb.Broadcast(ProgressEvent{JobID: "job-1", Iteration: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

func TestEventBroadcaster_CleanupThenUnsubscribe(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job-1")

	eb.Broadcast(ProgressEvent{JobID: "job-1", State: StateCompleted})
	eb.CleanupJob("job-1")

	// buffered terminal event is still delivered before the close
	if event, ok := <-ch; !ok || event.State != StateCompleted {
		t.Errorf("Expected buffered completed event, got %+v (open=%v)", event, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after cleanup")
	}

	// must not panic with a double close
	eb.Unsubscribe("job-1", ch)
}
