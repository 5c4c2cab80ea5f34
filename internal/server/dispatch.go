package server

import (
	"bufio"
	"context"
	"strings"

	"github.com/alwaysvivek/redis-go/internal/resp"
)

// subscribedAllowed is the command whitelist spec.md §4.7 permits while
// a connection has at least one active channel subscription.
var subscribedAllowed = map[string]bool{
	"SUBSCRIBE":   true,
	"UNSUBSCRIBE": true,
	"PING":        true,
	"QUIT":        true,
}

// queueControl commands are handled specially inside a transaction
// instead of being appended to the queue.
var queueControl = map[string]bool{
	"MULTI":   true,
	"EXEC":    true,
	"DISCARD": true,
	"WATCH":   true,
	"UNWATCH": true,
}

// atomicDispatchExcluded names commands that must keep running through
// commandTable's self-locking handlers instead of being routed through
// txCommandTable for ordinary (non-transaction) dispatch:
//   - BLPOP/BRPOP need their true-blocking handler; txCommandTable's
//     entry for them is a deliberately non-blocking, MULTI/EXEC-only
//     single attempt.
//   - KEYS, RENAME, RENAMENX, PERSIST, PTTL, TTL, and DBSIZE have no
//     *Locked keyspace method to run under ks.Lock(), so their
//     txCommandTable entry is a stub that always replies "not
//     supported inside MULTI/EXEC" — correct there, wrong here.
var atomicDispatchExcluded = map[string]bool{
	"BLPOP":    true,
	"BRPOP":    true,
	"KEYS":     true,
	"RENAME":   true,
	"RENAMENX": true,
	"PERSIST":  true,
	"PTTL":     true,
	"TTL":      true,
	"DBSIZE":   true,
}

// Dispatch routes one already-framed command to its handler, applying
// the subscribed-mode restriction and MULTI queueing before normal
// execution, and propagates successful writes to replicas.
//
// Commands with a real txCommandTable entry run under dispatchAtomic,
// which holds ks.Lock() across both the write and its propagation:
// otherwise two connections committing writes to different keys in
// order A, B could propagate to replicas in order B, A, which spec.md
// §9 forbids. atomicDispatchExcluded keeps everything else on
// commandTable's self-locking handlers.
func (s *Server) Dispatch(ctx context.Context, c *Conn, args []string) {
	name := strings.ToUpper(args[0])

	if len(c.subscribed) > 0 && !subscribedAllowed[name] {
		s.reply(c, func() {
			_ = resp.WriteError(c.bw, "ERR only SUBSCRIBE / UNSUBSCRIBE / PING / QUIT allowed in this context")
		})
		return
	}

	if c.txn.Active && !queueControl[name] {
		s.queueCommand(c, name, args)
		return
	}

	cmd, ok := commandTable[name]
	if !ok {
		s.reply(c, func() { _ = resp.WriteError(c.bw, "ERR unknown command '"+name+"'") })
		return
	}
	if len(args) < cmd.minArgs {
		writeErr(s, c, wrongArgs(name))
		return
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordCommand(name)
	}

	if txFn, ok := txCommandTable[name]; ok && !atomicDispatchExcluded[name] {
		s.dispatchAtomic(c, txFn, args)
		return
	}

	if cmd.fn(ctx, s, c, args) && s.Repl.IsMaster() {
		s.Repl.Propagate(args)
	}
}

// dispatchAtomic runs a txCommandTable handler with ks.Lock() held for
// its write and, if that write is replicated, its propagation too —
// the same critical section cmdExec uses for a whole MULTI/EXEC batch,
// applied here to a single ordinary command.
func (s *Server) dispatchAtomic(c *Conn, fn func(*Server, []string) (func(*bufio.Writer), bool), args []string) {
	s.KS.Lock()
	write, propagate := fn(s, args)
	if propagate && s.Repl.IsMaster() {
		s.Repl.Propagate(args)
	}
	s.KS.Unlock()
	s.reply(c, func() { write(c.bw) })
}

// queueCommand validates a command's arity (the only check made before
// queueing) and either appends it to the transaction's pending batch
// or marks the transaction error-sticky, per spec.md §4.6.
func (s *Server) queueCommand(c *Conn, name string, args []string) {
	cmd, ok := commandTable[name]
	if !ok {
		c.txn.MarkError()
		writeErr(s, c, simpleErr("ERR unknown command '"+name+"'"))
		return
	}
	if len(args) < cmd.minArgs {
		c.txn.MarkError()
		writeErr(s, c, wrongArgs(name))
		return
	}
	c.txn.Queue(args)
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "QUEUED") })
}
