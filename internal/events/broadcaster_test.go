package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscriber) Event {
	t.Helper()
	select {
	case e, ok := <-sub:
		if !ok {
			t.Fatal("subscriber closed")
		}
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestSubscriberCountTracksSubscriptions(t *testing.T) {
	base := SubscriberCount()
	a, b := Subscribe(), Subscribe()
	if got := SubscriberCount(); got != base+2 {
		t.Fatalf("expected %d subscribers, got %d", base+2, got)
	}
	Unsubscribe(a)
	Unsubscribe(a)
	if got := SubscriberCount(); got != base+1 {
		t.Errorf("double unsubscribe changed count to %d", got)
	}
	Unsubscribe(b)
	if got := SubscriberCount(); got != base {
		t.Errorf("expected %d subscribers, got %d", base, got)
	}
	if _, ok := <-a; ok {
		t.Error("expected unsubscribed channel to be closed")
	}
}

func TestEmitFansOutToEverySubscriber(t *testing.T) {
	subs := []Subscriber{Subscribe(), Subscribe()}
	defer func() {
		for _, s := range subs {
			Unsubscribe(s)
		}
	}()

	Emit("info", "clip.started", "", map[string]interface{}{"timeline_id": "crypt_intro", "clip": 0})

	for i, s := range subs {
		e := receive(t, s)
		if e.Name != "clip.started" || e.Fields["timeline_id"] != "crypt_intro" {
			t.Errorf("subscriber %d got %+v", i, e)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	slow := Subscribe()
	defer Unsubscribe(slow)
	before := DroppedCount()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+5; i++ {
			Emit("info", "node.fired", "", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}

	if got := len(slow); got != subscriberBuffer {
		t.Errorf("expected full buffer of %d, got %d", subscriberBuffer, got)
	}
	if got := DroppedCount() - before; got < 5 {
		t.Errorf("expected at least 5 drops, got %d", got)
	}
}

func TestRecentEventsReturnsNewestLast(t *testing.T) {
	Clear()
	for i := 0; i < 10; i++ {
		Emit("info", "node.fired", "", map[string]interface{}{"node": i})
	}

	recent := RecentEvents(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	if recent[0].Fields["node"] != 7 || recent[2].Fields["node"] != 9 {
		t.Errorf("unexpected window %v .. %v", recent[0].Fields, recent[2].Fields)
	}
	if got := len(RecentEvents(0)); got != 10 {
		t.Errorf("expected all 10 events for n=0, got %d", got)
	}
	if got := len(RecentEvents(500)); got != 10 {
		t.Errorf("expected 10 events for oversized n, got %d", got)
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()
	subs := []Subscriber{Subscribe(), Subscribe(), Subscribe()}

	CloseAllSubscribers()

	if got := SubscriberCount(); got != 0 {
		t.Errorf("expected no subscribers, got %d", got)
	}
	for i, s := range subs {
		if _, ok := <-s; ok {
			t.Errorf("subscriber %d still open", i)
		}
		Unsubscribe(s)
	}
}
