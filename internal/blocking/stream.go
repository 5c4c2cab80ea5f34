package blocking

import (
	"context"
	"sync"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
)

// StreamResult maps each stream key that received qualifying entries to
// those entries, in id order.
type StreamResult map[string][]keyspace.StreamEntry

type streamWaiter struct {
	after     map[string]keyspace.StreamID
	ch        chan StreamResult
	delivered bool
	mu        sync.Mutex
}

// StreamCoordinator holds the waiter queues for XREAD BLOCK, keyed by
// stream key. A waiter that listens on several streams is registered
// under each one and removed from all of them once any key satisfies
// it — XREAD wakes on the first stream to receive a new entry, not
// only the one it happened to be registered under first.
type StreamCoordinator struct {
	mu      sync.Mutex
	waiters map[string][]*streamWaiter
}

// NewStreamCoordinator creates an empty coordinator.
func NewStreamCoordinator() *StreamCoordinator {
	return &StreamCoordinator{waiters: make(map[string][]*streamWaiter)}
}

// XAdd appends an entry to the stream at key and then drains any XREAD
// BLOCK waiters registered on that key whose threshold id the new
// entry satisfies.
func (c *StreamCoordinator) XAdd(ks *keyspace.Keyspace, key, idSpec string, fields []keyspace.Field, nowMs int64) (keyspace.StreamID, error) {
	ks.Lock()
	defer ks.Unlock()
	id, err := ks.XAddLocked(key, idSpec, fields, nowMs)
	if err != nil {
		return keyspace.StreamID{}, err
	}
	c.drainLocked(ks, key)
	return id, nil
}

func (c *StreamCoordinator) drainLocked(ks *keyspace.Keyspace, key string) {
	c.mu.Lock()
	q := append([]*streamWaiter(nil), c.waiters[key]...)
	c.mu.Unlock()

	for _, w := range q {
		after, tracked := w.after[key]
		if !tracked {
			continue
		}
		entries, err := ks.EntriesAfterLocked(key, after)
		if err != nil || len(entries) == 0 {
			continue
		}
		c.fire(w, StreamResult{key: entries})
	}
}

func (c *StreamCoordinator) fire(w *streamWaiter, res StreamResult) {
	w.mu.Lock()
	if w.delivered {
		w.mu.Unlock()
		return
	}
	w.delivered = true
	w.mu.Unlock()

	for k := range w.after {
		c.remove(k, w)
	}
	w.ch <- res
}

func (c *StreamCoordinator) remove(key string, w *streamWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.waiters[key]
	for i, cand := range q {
		if cand == w {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(c.waiters, key)
	} else {
		c.waiters[key] = q
	}
}

// Read returns, for each key in keys, the entries with id strictly
// greater than the corresponding entry in after. If none are
// immediately available and block is true, it parks until any key
// receives a qualifying entry, the timeout elapses (0 = forever), or
// ctx is cancelled.
func (c *StreamCoordinator) Read(ctx context.Context, ks *keyspace.Keyspace, keys []string, after []keyspace.StreamID, block bool, timeout time.Duration) (StreamResult, bool) {
	ks.Lock()
	res := StreamResult{}
	for i, k := range keys {
		entries, err := ks.EntriesAfterLocked(k, after[i])
		if err == nil && len(entries) > 0 {
			res[k] = entries
		}
	}
	if len(res) > 0 || !block {
		ks.Unlock()
		return res, len(res) > 0
	}

	w := &streamWaiter{after: make(map[string]keyspace.StreamID), ch: make(chan StreamResult, 1)}
	for i, k := range keys {
		w.after[k] = after[i]
	}
	c.mu.Lock()
	for _, k := range keys {
		c.waiters[k] = append(c.waiters[k], w)
	}
	c.mu.Unlock()
	ks.Unlock()

	if timeout == 0 {
		select {
		case r := <-w.ch:
			return r, true
		case <-ctx.Done():
			c.fire(w, nil)
			return nil, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-w.ch:
		return r, true
	case <-timer.C:
		c.fire(w, nil)
		return nil, false
	case <-ctx.Done():
		c.fire(w, nil)
		return nil, false
	}
}
