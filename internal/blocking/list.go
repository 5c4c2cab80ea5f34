// Package blocking implements the FIFO waiter queues that let BLPOP,
// BRPOP, and XREAD BLOCK park a worker until another connection's write
// can satisfy them, per spec §4.5. The coordinator's mutex is always
// acquired after the keyspace mutex (order K -> B), and is held only
// long enough to enqueue or drain a waiter list — never across a
// channel send.
package blocking

import (
	"context"
	"sync"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
)

// ListResult is delivered to a parked BLPOP/BRPOP waiter.
type ListResult struct {
	Key   string
	Value string
}

type listWaiter struct {
	head bool     // true = BLPOP (wants the front), false = BRPOP (wants the back)
	keys []string // every key this waiter is registered under
	ch   chan ListResult
}

// ListCoordinator holds the per-key FIFO waiter queues for list
// blocking commands.
type ListCoordinator struct {
	mu      sync.Mutex
	waiters map[string][]*listWaiter
}

// NewListCoordinator creates an empty coordinator.
func NewListCoordinator() *ListCoordinator {
	return &ListCoordinator{waiters: make(map[string][]*listWaiter)}
}

// Push pushes values onto the list at key (through the keyspace, which
// owns mutex K) and then, still inside that same critical section,
// drains as many matching waiters as the new elements can satisfy —
// this is what guarantees invariant 5: a waiter is served before the
// mutation becomes visible to any other reader.
func (c *ListCoordinator) Push(ks *keyspace.Keyspace, key string, values []string, head bool) (int, error) {
	ks.Lock()
	defer ks.Unlock()
	n, err := ks.PushLocked(key, values, head)
	if err != nil {
		return 0, err
	}
	c.drainLocked(ks, key)
	return n, nil
}

// drainLocked hands list elements to waiters in FIFO order until the
// waiter queue or the list is exhausted. Caller must hold ks's mutex.
// c.mu stays held across the pop and the dequeue: BPop's timeout/
// cancellation path also removes a waiter under c.mu, so the decision
// to pop an element for a given waiter must be atomic with that removal
// — otherwise a waiter that times out mid-drain can still be popped
// for, sending its result into a channel nobody reads again. Because
// c.mu is a single mutex shared by every key, not one per key, holding
// it across the whole pop-and-dequeue also rules out a waiter
// registered on several keys (a multi-key BLPOP/BRPOP) being satisfied
// twice: the dequeue below always removes it from every key it was
// registered under before the lock is released.
func (c *ListCoordinator) drainLocked(ks *keyspace.Keyspace, key string) {
	for {
		c.mu.Lock()
		q := c.waiters[key]
		if len(q) == 0 {
			c.mu.Unlock()
			return
		}
		w := q[0]

		var v string
		var ok bool
		if w.head {
			v, ok = ks.PopFrontLocked(key)
		} else {
			v, ok = ks.PopBackLocked(key)
		}
		if !ok {
			c.mu.Unlock()
			return
		}

		c.dequeueAllLocked(w)
		c.mu.Unlock()

		w.ch <- ListResult{Key: key, Value: v}
	}
}

// dequeueAllLocked removes w from the waiter queue of every key it was
// registered under. Caller must hold c.mu.
func (c *ListCoordinator) dequeueAllLocked(w *listWaiter) {
	for _, k := range w.keys {
		q := c.waiters[k]
		for i, cand := range q {
			if cand == w {
				q = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(q) == 0 {
			delete(c.waiters, k)
		} else {
			c.waiters[k] = q
		}
	}
}

// BPop blocks until any one of keys yields an element (from the front
// if head is true, the back otherwise), the timeout elapses (0 means
// wait forever), or ctx is cancelled. Keys are checked, and then
// registered, in the order given, so a multi-key BLPOP/BRPOP wakes on
// whichever key is pushed to first — mirroring the stream coordinator's
// multi-key Read. ok is false on timeout or cancellation.
func (c *ListCoordinator) BPop(ctx context.Context, ks *keyspace.Keyspace, keys []string, timeout time.Duration, head bool) (ListResult, bool) {
	ks.Lock()
	for _, key := range keys {
		var v string
		var popped bool
		if head {
			v, popped = ks.PopFrontLocked(key)
		} else {
			v, popped = ks.PopBackLocked(key)
		}
		if popped {
			ks.Unlock()
			return ListResult{Key: key, Value: v}, true
		}
	}

	w := &listWaiter{head: head, keys: keys, ch: make(chan ListResult, 1)}
	c.mu.Lock()
	for _, key := range keys {
		c.waiters[key] = append(c.waiters[key], w)
	}
	c.mu.Unlock()
	ks.Unlock()

	if timeout == 0 {
		select {
		case res := <-w.ch:
			return res, true
		case <-ctx.Done():
			c.removeAll(w)
			return ListResult{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-w.ch:
		return res, true
	case <-timer.C:
		c.removeAll(w)
		return ListResult{}, false
	case <-ctx.Done():
		c.removeAll(w)
		return ListResult{}, false
	}
}

func (c *ListCoordinator) removeAll(w *listWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dequeueAllLocked(w)
}
