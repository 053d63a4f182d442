package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	techID := "tech1"
	ch := b.Subscribe(techID)

	evt := DispatchEvent{Type: "route.optimized", Data: map[string]any{"jobs": 3}}
	b.Publish(techID, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["jobs"].(int) != 3 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(techID, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestBrokerIsolatesTechnicians(t *testing.T) {
	b := NewBroker()
	chA := b.Subscribe("techA")
	chB := b.Subscribe("techB")
	defer b.Unsubscribe("techA", chA)
	defer b.Unsubscribe("techB", chB)

	b.Publish("techA", DispatchEvent{Type: "technician.location"})

	select {
	case <-chA:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("techA missed its event")
	}
	select {
	case evt := <-chB:
		t.Fatalf("techB received techA's event: %+v", evt)
	default:
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("tech1")
	defer b.Unsubscribe("tech1", ch)

	// channel buffer is 8; publishing more must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish("tech1", DispatchEvent{Type: "technician.location"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
