package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

// cmdFunc executes one command against the server and connection,
// writing its own reply (under c's write lock, via s.reply). The
// returned bool reports whether the command committed a write that
// should be propagated to connected replicas.
type cmdFunc func(ctx context.Context, s *Server, c *Conn, args []string) bool

// command is one entry in the router table: the minimum argument count
// (including the command name itself) and the handler.
type command struct {
	minArgs int
	fn      cmdFunc
}

// commandTable is the router used for ordinary (non-queued) dispatch.
// It is also consulted by txn queueing for arity validation and by
// applyReplicated on a replica; EXEC's batch engine looks queued
// commands up in txCommandTable instead.
var commandTable = map[string]command{
	"PING":   {0, cmdPing},
	"ECHO":   {2, cmdEcho},
	"QUIT":   {0, cmdQuit},
	"SELECT": {2, cmdSelect},

	"SET":      {3, cmdSet},
	"GET":      {2, cmdGet},
	"DEL":      {2, cmdDel},
	"EXISTS":   {2, cmdExists},
	"TYPE":     {2, cmdType},
	"KEYS":     {2, cmdKeys},
	"INCR":     {2, cmdIncr},
	"INCRBY":   {3, cmdIncrBy},
	"CONFIG":   {3, cmdConfig},
	"RENAME":   {3, cmdRename},
	"RENAMENX": {3, cmdRenameNX},
	"PERSIST":  {2, cmdPersist},
	"PTTL":     {2, cmdPTTL},
	"TTL":      {2, cmdTTL},
	"DBSIZE":   {1, cmdDBSize},

	"LPUSH":  {3, cmdLPush},
	"RPUSH":  {3, cmdRPush},
	"LPOP":   {2, cmdLPop},
	"RPOP":   {2, cmdRPop},
	"LLEN":   {2, cmdLLen},
	"LRANGE": {4, cmdLRange},
	"LINDEX": {3, cmdLIndex},
	"LSET":   {4, cmdLSet},
	"BLPOP":  {3, cmdBLPop},
	"BRPOP":  {3, cmdBRPop},

	"XADD":      {5, cmdXAdd},
	"XLEN":      {2, cmdXLen},
	"XRANGE":    {4, cmdXRange},
	"XREVRANGE": {4, cmdXRevRange},
	"XREAD":     {4, cmdXRead},

	"ZADD":   {4, cmdZAdd},
	"ZSCORE": {3, cmdZScore},
	"ZRANK":  {3, cmdZRank},
	"ZRANGE": {4, cmdZRange},
	"ZCARD":  {2, cmdZCard},
	"ZREM":   {3, cmdZRem},

	"SUBSCRIBE":   {2, cmdSubscribe},
	"UNSUBSCRIBE": {1, cmdUnsubscribe},
	"PUBLISH":     {3, cmdPublish},

	"MULTI":   {1, cmdMulti},
	"EXEC":    {1, cmdExec},
	"DISCARD": {1, cmdDiscard},
	"WATCH":   {2, cmdWatch},
	"UNWATCH": {1, cmdUnwatch},

	"REPLCONF": {2, cmdReplconf},
	"PSYNC":    {3, cmdPsync},
	"WAIT":     {3, cmdWait},
	"INFO":     {1, cmdInfo},
}

func cmdPing(_ context.Context, s *Server, c *Conn, args []string) bool {
	s.reply(c, func() {
		if len(args) >= 2 {
			_ = resp.WriteBulkString(c.bw, args[1])
			return
		}
		_ = resp.WriteSimpleString(c.bw, "PONG")
	})
	return false
}

func cmdEcho(_ context.Context, s *Server, c *Conn, args []string) bool {
	s.reply(c, func() { _ = resp.WriteBulkString(c.bw, args[1]) })
	return false
}

func cmdQuit(_ context.Context, s *Server, c *Conn, _ []string) bool {
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	_ = c.netConn.Close()
	return false
}

// cmdSelect is accepted for client compatibility; this server has a
// single logical database, so any index other than 0 is an error.
func cmdSelect(_ context.Context, s *Server, c *Conn, args []string) bool {
	s.reply(c, func() {
		if args[1] != "0" {
			_ = resp.WriteError(c.bw, "ERR SELECT is not supported, only DB 0 exists")
			return
		}
		_ = resp.WriteSimpleString(c.bw, "OK")
	})
	return false
}

func writeErr(s *Server, c *Conn, err error) {
	s.reply(c, func() { _ = resp.WriteError(c.bw, err.Error()) })
}

func wrongArgs(name string) error {
	return simpleErr(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func cmdSet(_ context.Context, s *Server, c *Conn, args []string) bool {
	var opts keyspace.SetOptions
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "EX":
			if i+1 >= len(args) {
				writeErr(s, c, errSyntax)
				return false
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				writeErr(s, c, errSyntax)
				return false
			}
			opts.HasExpiry = true
			opts.ExpireAt = time.Now().Add(time.Duration(n) * time.Second)
			i++
		case "PX":
			if i+1 >= len(args) {
				writeErr(s, c, errSyntax)
				return false
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				writeErr(s, c, errSyntax)
				return false
			}
			opts.HasExpiry = true
			opts.ExpireAt = time.Now().Add(time.Duration(n) * time.Millisecond)
			i++
		default:
			writeErr(s, c, errSyntax)
			return false
		}
	}
	s.KS.Set(args[1], args[2], opts)
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	return true
}

var errSyntax = simpleErr("ERR syntax error")

func cmdGet(_ context.Context, s *Server, c *Conn, args []string) bool {
	v, ok, err := s.KS.Get(args[1])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(c.bw)
			return
		}
		_ = resp.WriteBulkString(c.bw, v)
	})
	return false
}

func cmdDel(_ context.Context, s *Server, c *Conn, args []string) bool {
	n := s.KS.Del(args[1:]...)
	s.reply(c, func() { _ = resp.WriteInteger(c.bw, int64(n)) })
	return n > 0
}

func cmdExists(_ context.Context, s *Server, c *Conn, args []string) bool {
	ok := s.KS.Exists(args[1])
	s.reply(c, func() {
		if ok {
			_ = resp.WriteInteger(c.bw, 1)
		} else {
			_ = resp.WriteInteger(c.bw, 0)
		}
	})
	return false
}

func cmdType(_ context.Context, s *Server, c *Conn, args []string) bool {
	t := s.KS.Type(args[1])
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, t) })
	return false
}

func cmdKeys(_ context.Context, s *Server, c *Conn, args []string) bool {
	keys := s.KS.Keys(args[1])
	s.reply(c, func() {
		_ = resp.WriteArrayHeader(c.bw, len(keys))
		for _, k := range keys {
			_ = resp.WriteBulkString(c.bw, k)
		}
	})
	return false
}

func cmdIncr(_ context.Context, s *Server, c *Conn, args []string) bool {
	return doIncrBy(s, c, args[1], 1)
}

func cmdIncrBy(_ context.Context, s *Server, c *Conn, args []string) bool {
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		writeErr(s, c, keyspace.ErrNotInteger)
		return false
	}
	return doIncrBy(s, c, args[1], delta)
}

func doIncrBy(s *Server, c *Conn, key string, delta int64) bool {
	n, err := s.KS.IncrBy(key, delta)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, n)
	})
	return err == nil
}

// cmdConfig implements CONFIG GET for the two parameters spec.md
// names; every other subcommand is rejected.
func cmdConfig(_ context.Context, s *Server, c *Conn, args []string) bool {
	s.reply(c, func() {
		if !strings.EqualFold(args[1], "GET") {
			_ = resp.WriteError(c.bw, "ERR unsupported CONFIG subcommand")
			return
		}
		var value string
		switch strings.ToLower(args[2]) {
		case "dir":
			value = s.opts.Dir
		case "dbfilename":
			value = s.opts.DBFilename
		default:
			_ = resp.WriteArrayHeader(c.bw, 0)
			return
		}
		_ = resp.WriteArrayHeader(c.bw, 2)
		_ = resp.WriteBulkString(c.bw, strings.ToLower(args[2]))
		_ = resp.WriteBulkString(c.bw, value)
	})
	return false
}

func cmdRename(_ context.Context, s *Server, c *Conn, args []string) bool {
	ok, err := s.KS.Rename(args[1], args[2], true)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteSimpleString(c.bw, "OK")
	})
	return ok && err == nil
}

func cmdRenameNX(_ context.Context, s *Server, c *Conn, args []string) bool {
	ok, err := s.KS.Rename(args[1], args[2], false)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		if ok {
			_ = resp.WriteInteger(c.bw, 1)
		} else {
			_ = resp.WriteInteger(c.bw, 0)
		}
	})
	return ok && err == nil
}

func cmdPersist(_ context.Context, s *Server, c *Conn, args []string) bool {
	removed := s.KS.Persist(args[1])
	s.reply(c, func() {
		if removed {
			_ = resp.WriteInteger(c.bw, 1)
		} else {
			_ = resp.WriteInteger(c.bw, 0)
		}
	})
	return removed
}

func cmdPTTL(_ context.Context, s *Server, c *Conn, args []string) bool {
	ttl := s.KS.PTTL(args[1])
	s.reply(c, func() { _ = resp.WriteInteger(c.bw, ttl) })
	return false
}

func cmdTTL(_ context.Context, s *Server, c *Conn, args []string) bool {
	ms := s.KS.PTTL(args[1])
	s.reply(c, func() {
		switch ms {
		case -1, -2:
			_ = resp.WriteInteger(c.bw, ms)
		default:
			_ = resp.WriteInteger(c.bw, (ms+999)/1000)
		}
	})
	return false
}

func cmdDBSize(_ context.Context, s *Server, c *Conn, _ []string) bool {
	n := s.KS.DBSize()
	s.reply(c, func() { _ = resp.WriteInteger(c.bw, int64(n)) })
	return false
}
