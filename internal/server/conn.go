package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/resp"
	"github.com/alwaysvivek/redis-go/internal/txn"
	"golang.org/x/time/rate"
)

// Conn is the per-connection state threaded through command dispatch:
// the buffered socket, its transaction/subscription state, and (once
// PSYNC completes) the replica handle registered with the replication
// registry. Every struct in this package that reaches across
// connections does so through a handle plus a registry lookup, not an
// owning back-pointer — cancellation never has to chase pointers
// through the registries.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	writeMu sync.Mutex // guards bw; also serializes pub/sub Deliver against normal replies

	subscribed map[string]bool
	txn        *txn.State
	limiter    *rate.Limiter

	listenPort int                   // set by REPLCONF listening-port, read by PSYNC
	replica    *replication.Replica // non-nil once this connection becomes a replica link
}

func newConn(nc net.Conn, limiter *rate.Limiter) *Conn {
	return &Conn{
		netConn:    nc,
		br:         bufio.NewReader(nc),
		bw:         bufio.NewWriter(nc),
		subscribed: make(map[string]bool),
		txn:        txn.NewState(),
		limiter:    limiter,
	}
}

// Deliver implements pubsub.Subscriber, writing a published message
// frame to this connection's socket under its own write lock so a
// PUBLISH from another goroutine can't interleave with an in-flight
// reply to this connection's own commands.
func (c *Conn) Deliver(channel, payload string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = resp.WriteArrayHeader(c.bw, 3)
	_ = resp.WriteBulkString(c.bw, "message")
	_ = resp.WriteBulkString(c.bw, channel)
	_ = resp.WriteBulkString(c.bw, payload)
	_ = c.bw.Flush()
}

// subscribedChannels returns the connection's current subscription
// set as a slice, used by UNSUBSCRIBE with no arguments.
func (c *Conn) subscribedChannels() []string {
	out := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		out = append(out, ch)
	}
	return out
}
