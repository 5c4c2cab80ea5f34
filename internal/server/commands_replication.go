package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

// cmdReplconf handles the subset of REPLCONF subcommands a master
// receives from a connecting replica during the handshake, plus
// GETACK from an ordinary client asking for this instance's own
// consumption offset.
func cmdReplconf(_ context.Context, s *Server, c *Conn, args []string) bool {
	switch strings.ToUpper(args[1]) {
	case "LISTENING-PORT":
		if len(args) >= 3 {
			if p, err := strconv.Atoi(args[2]); err == nil {
				c.listenPort = p
			}
		}
		s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	case "CAPA":
		s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	case "GETACK":
		s.reply(c, func() {
			_ = resp.WriteArrayHeader(c.bw, 3)
			_ = resp.WriteBulkString(c.bw, "REPLCONF")
			_ = resp.WriteBulkString(c.bw, "ACK")
			_ = resp.WriteBulkString(c.bw, strconv.FormatInt(s.Repl.ProcessedOffset(), 10))
		})
	case "ACK":
		if len(args) >= 3 && c.replica != nil {
			if off, err := strconv.ParseInt(args[2], 10, 64); err == nil {
				s.Repl.Ack(c.replica, off)
			}
		}
	default:
		s.reply(c, func() { _ = resp.WriteError(c.bw, "ERR unknown REPLCONF subcommand") })
	}
	return false
}

// cmdPsync completes the master side of the handshake: it sends the
// FULLRESYNC header and an empty RDB snapshot, then registers the
// connection as a replica. Once this returns, serveConn hands the
// socket off to runReplicaLink instead of continuing the ordinary
// per-command read loop.
func cmdPsync(_ context.Context, s *Server, c *Conn, _ []string) bool {
	s.reply(c, func() {
		_, _ = c.bw.WriteString(s.Repl.FullResyncHeader())
		_ = replication.SendSnapshot(c.bw, replication.EmptySnapshot())
	})
	c.replica = s.Repl.RegisterReplica(c.netConn, c.listenPort)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ConnectedReplicas.Set(float64(len(s.Repl.ConnectedReplicas())))
	}
	return false
}

// cmdWait implements WAIT numreplicas timeout_ms: it requests a fresh
// ACK round from every replica, then blocks until numreplicas have
// acknowledged the master's current offset or the timeout expires.
func cmdWait(_ context.Context, s *Server, c *Conn, args []string) bool {
	numReplicas, err1 := strconv.Atoi(args[1])
	timeoutMs, err2 := strconv.ParseInt(args[2], 10, 64)
	if err1 != nil || err2 != nil {
		writeErr(s, c, errSyntax)
		return false
	}
	target := s.Repl.MasterOffset()
	s.Repl.RequestAcks()
	count := s.Repl.WaitQuorum(numReplicas, target, time.Duration(timeoutMs)*time.Millisecond)
	s.reply(c, func() { _ = resp.WriteInteger(c.bw, int64(count)) })
	return false
}

// cmdInfo returns the "# Replication" section spec.md §4.8 requires.
func cmdInfo(_ context.Context, s *Server, c *Conn, _ []string) bool {
	info := s.Repl.Info()
	s.reply(c, func() { _ = resp.WriteBulk(c.bw, []byte(info)) })
	return false
}

// runReplicaLink takes over a connection once it has completed PSYNC:
// the master never expects ordinary client commands on this socket
// again, only REPLCONF ACK frames sent periodically or in response to
// GETACK. Everything else arriving here is ignored rather than closing
// the link, since a slightly unusual replica client is not a protocol
// violation worth dropping the connection over.
func (s *Server) runReplicaLink(_ context.Context, c *Conn) {
	defer func() {
		if s.opts.Metrics != nil {
			s.opts.Metrics.ConnectedReplicas.Set(float64(len(s.Repl.ConnectedReplicas())))
		}
	}()
	for {
		if err := c.netConn.SetReadDeadline(time.Time{}); err != nil {
			return
		}
		args, err := resp.ReadCommand(c.br)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		strArgs := make([]string, len(args))
		for i, a := range args {
			strArgs[i] = string(a)
		}
		if strings.EqualFold(strArgs[0], "REPLCONF") && len(strArgs) >= 3 && strings.EqualFold(strArgs[1], "ACK") {
			if off, err := strconv.ParseInt(strArgs[2], 10, 64); err == nil {
				s.Repl.Ack(c.replica, off)
			}
		}
	}
}
