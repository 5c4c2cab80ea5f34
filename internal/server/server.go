// Package server implements the accept loop, per-connection dispatcher,
// and command table that tie together the keyspace, blocking
// coordinator, pub/sub table, and replication registry.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alwaysvivek/redis-go/internal/blocking"
	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/metrics"
	"github.com/alwaysvivek/redis-go/internal/pubsub"
	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/resp"
	"golang.org/x/time/rate"
)

// Options configures a Server at construction time.
type Options struct {
	Dir         string
	DBFilename  string
	RateLimit   int // commands/sec/connection; 0 = unlimited
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	Metrics     *metrics.Registry // nil disables metrics recording
	Logger      *slog.Logger
}

// Server is the shared owning structure for one server process: every
// connection worker receives a pointer to it and reaches the keyspace,
// blocking coordinators, pub/sub table, and replication state through
// it rather than through process-wide singletons.
type Server struct {
	KS      *keyspace.Keyspace
	ListC   *blocking.ListCoordinator
	StreamC *blocking.StreamCoordinator
	PS      *pubsub.Table
	Repl    *replication.State

	opts   Options
	logger *slog.Logger

	ln        net.Listener
	clients   atomic.Int64
	listenAddr string
}

// New creates a Server ready to accept connections. repl must already
// be configured with the correct role (master or replica-of) by the
// caller.
func New(repl *replication.State, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	return &Server{
		KS:      keyspace.New(),
		ListC:   blocking.NewListCoordinator(),
		StreamC: blocking.NewStreamCoordinator(),
		PS:      pubsub.New(),
		Repl:    repl,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// ListenAndServe binds addr and accepts connections until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.listenAddr = addr
	s.logger.Info("listening", "addr", addr, "role", s.Repl.Role)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go s.serveConn(ctx, c)
	}
}

// Addr returns the address this server is listening on, or "" before
// ListenAndServe has bound a listener.
func (s *Server) Addr() string {
	return s.listenAddr
}

// ListenPort returns the numeric port this server is bound to, or 0
// before ListenAndServe has bound a listener.
func (s *Server) ListenPort() int {
	if s.ln == nil {
		return 0
	}
	if tcpAddr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// readResult carries one framed command, or the error that ended the
// connection's read side, from readLoop to serveConn.
type readResult struct {
	args []string
	err  error
}

// deferredProceed names commands after which readLoop must wait for
// Dispatch to finish, and serveConn to decide what happens next,
// before it is allowed to read the next frame. PSYNC can turn this
// connection into a one-way replication link whose reads are taken
// over entirely by runReplicaLink (see below); letting readLoop start
// another Peek concurrently with that handoff would race two
// goroutines over the same buffered reader.
var deferredProceed = map[string]bool{
	"PSYNC": true,
}

// serveConn owns one client connection for its whole lifetime. Reading
// is split into its own goroutine (readLoop) so a blocking command
// parked mid-Dispatch — BLPOP, BRPOP, XREAD BLOCK — still notices the
// peer disconnecting: readLoop's Peek/ReadCommand call returns as soon
// as the socket closes, and it cancels connCtx right there rather than
// waiting for the main loop to come back around. BPop and
// StreamCoordinator.Read both select on ctx.Done(), so cancellation
// unparks them and removes their waiter immediately, satisfying
// spec.md's requirement that closing a connection unwinds its pending
// waiters instead of leaking them until their own timeout.
//
// readLoop only starts watching the socket for the frame after the one
// it just delivered once serveConn tells it to proceed. For ordinary
// commands that signal happens before Dispatch runs, so a long block
// still races a disconnect against the clock instead of against
// nothing; for deferredProceed commands it's held back until Dispatch
// has returned and the replica handoff (if any) is resolved.
func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if s.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateLimit)
	}
	c := newConn(nc, limiter)
	defer s.closeConn(c)

	s.clients.Add(1)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ConnectedClients.Set(float64(s.clients.Load()))
	}

	results := make(chan readResult)
	proceed := make(chan struct{})
	go s.readLoop(nc, c, connCtx, cancel, results, proceed)

	signalProceed := func() {
		select {
		case proceed <- struct{}{}:
		case <-connCtx.Done():
		}
	}

	for res := range results {
		if res.err != nil {
			if !errors.Is(res.err, io.EOF) {
				s.writeProtocolError(c, res.err)
			}
			return
		}
		if len(res.args) == 0 {
			signalProceed()
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			s.reply(c, func() { _ = resp.WriteError(c.bw, "ERR rate limit exceeded") })
			signalProceed()
			continue
		}

		name := strings.ToUpper(res.args[0])
		if !deferredProceed[name] {
			signalProceed()
		}

		s.Dispatch(connCtx, c, res.args)

		if c.replica != nil {
			// Once PSYNC completes, this socket becomes a one-way
			// replication stream; the worker no longer reads client
			// commands from it; runReplicaLink (commands_replication.go)
			// reads only REPLCONF ACK frames from it from here on. readLoop
			// is left parked waiting on proceed and exits once cancel
			// runs above, in the deferred call.
			s.runReplicaLink(connCtx, c)
			return
		}
		if deferredProceed[name] {
			signalProceed()
		}
	}
}

// readLoop frames commands off nc and hands them to serveConn over
// results, one at a time, waiting for serveConn's go-ahead on proceed
// before attempting the next one. On any read error it calls cancel
// immediately — before trying to deliver the error — so a concurrent
// Dispatch call blocked on this same connection's ctx wakes up without
// waiting for this goroutine's send to be received.
func (s *Server) readLoop(nc net.Conn, c *Conn, connCtx context.Context, cancel context.CancelFunc, results chan<- readResult, proceed <-chan struct{}) {
	defer close(results)
	for {
		if err := nc.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
			cancel()
			results <- readResult{err: err}
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			cancel()
			results <- readResult{err: err}
			return
		}
		if err := nc.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			cancel()
			results <- readResult{err: err}
			return
		}

		rawArgs, err := resp.ReadCommand(c.br)
		if err != nil {
			cancel()
			results <- readResult{err: err}
			return
		}

		strArgs := make([]string, len(rawArgs))
		for i, a := range rawArgs {
			strArgs[i] = string(a)
		}
		results <- readResult{args: strArgs}

		select {
		case <-proceed:
		case <-connCtx.Done():
			return
		}
	}
}

func (s *Server) closeConn(c *Conn) {
	s.PS.UnsubscribeAll(c.subscribedChannels(), c)
	if c.replica != nil {
		s.Repl.RemoveReplica(c.replica)
		if s.opts.Metrics != nil {
			s.opts.Metrics.ConnectedReplicas.Set(float64(len(s.Repl.ConnectedReplicas())))
		}
	}
	_ = c.netConn.Close()
	s.clients.Add(-1)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ConnectedClients.Set(float64(s.clients.Load()))
	}
}

func (s *Server) writeProtocolError(c *Conn, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = resp.WriteError(c.bw, "ERR protocol error: "+err.Error())
	_ = c.bw.Flush()
}

// reply runs fn under the connection's write lock and flushes the
// buffered writer, the pattern every command handler uses to produce
// its response.
func (s *Server) reply(c *Conn, fn func()) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fn()
	_ = c.bw.Flush()
}
