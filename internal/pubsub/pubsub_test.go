package pubsub

import "testing"

type fakeSub struct {
	msgs []string
}

func (f *fakeSub) Deliver(channel, payload string) {
	f.msgs = append(f.msgs, channel+":"+payload)
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	table := New()
	a := &fakeSub{}
	b := &fakeSub{}
	table.Subscribe("news", a)
	table.Subscribe("news", b)
	table.Subscribe("sports", b)

	n := table.Publish("news", "hello")
	if n != 2 {
		t.Fatalf("Publish returned %d, want 2", n)
	}
	if len(a.msgs) != 1 || a.msgs[0] != "news:hello" {
		t.Fatalf("a.msgs = %v", a.msgs)
	}
	if len(b.msgs) != 1 || b.msgs[0] != "news:hello" {
		t.Fatalf("b.msgs = %v", b.msgs)
	}
}

func TestUnsubscribe(t *testing.T) {
	table := New()
	a := &fakeSub{}
	table.Subscribe("news", a)
	table.Unsubscribe("news", a)
	if n := table.Publish("news", "hello"); n != 0 {
		t.Fatalf("Publish returned %d after unsubscribe, want 0", n)
	}
}

func TestUnsubscribeAll(t *testing.T) {
	table := New()
	a := &fakeSub{}
	table.Subscribe("news", a)
	table.Subscribe("sports", a)
	table.UnsubscribeAll([]string{"news", "sports"}, a)
	if n := table.Publish("news", "x"); n != 0 {
		t.Fatalf("Publish(news) = %d, want 0", n)
	}
	if n := table.Publish("sports", "x"); n != 0 {
		t.Fatalf("Publish(sports) = %d, want 0", n)
	}
}
