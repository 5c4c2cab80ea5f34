// Package pubsub implements the publish/subscribe channel table: a
// mapping from channel name to the set of subscribed connections, kept
// consistent with each connection's own view of what it has subscribed
// to. Its mutex is always acquired after the keyspace mutex (order
// K -> P), though in practice PUBLISH/SUBSCRIBE never need K at all.
package pubsub

import "sync"

// Subscriber is anything that can receive a published message. The
// server package's connection type implements this; tests can supply a
// fake.
type Subscriber interface {
	// Deliver writes a [message, channel, payload] frame to the
	// subscriber. Implementations must serialize concurrent calls
	// themselves (e.g. with a per-connection write mutex) since
	// PUBLISH may call Deliver concurrently with the subscriber's own
	// replies to its client.
	Deliver(channel, payload string)
}

// Table is the shared channel -> subscriber-set index.
type Table struct {
	mu    sync.RWMutex
	chans map[string]map[Subscriber]struct{}
}

// New creates an empty channel table.
func New() *Table {
	return &Table{chans: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds sub to channel. It returns nothing: tracking the
// subscriber's total subscription count is the caller's
// responsibility; this only maintains the shared index.
func (t *Table) Subscribe(channel string, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.chans[channel]
	if !ok {
		set = make(map[Subscriber]struct{})
		t.chans[channel] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes sub from channel.
func (t *Table) Unsubscribe(channel string, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.chans[channel]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(t.chans, channel)
	}
}

// UnsubscribeAll removes sub from every channel in channels, used when
// a connection disconnects or issues a bare UNSUBSCRIBE.
func (t *Table) UnsubscribeAll(channels []string, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range channels {
		if set, ok := t.chans[ch]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(t.chans, ch)
			}
		}
	}
}

// Publish delivers payload to every current subscriber of channel and
// returns the count delivered. The subscriber set is snapshotted under
// the read lock and then delivered outside it, so a slow or blocked
// subscriber can't stall PUBLISH for everyone else.
func (t *Table) Publish(channel, payload string) int {
	t.mu.RLock()
	set := t.chans[channel]
	subs := make([]Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	t.mu.RUnlock()

	for _, s := range subs {
		s.Deliver(channel, payload)
	}
	return len(subs)
}
