package server

import (
	"context"
	"strconv"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

func cmdLPush(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.ListC.Push(s.KS, args[1], args[2:], true)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return err == nil
}

func cmdRPush(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.ListC.Push(s.KS, args[1], args[2:], false)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return err == nil
}

func cmdLPop(_ context.Context, s *Server, c *Conn, args []string) bool {
	return doListPop(s, c, args, true)
}

func cmdRPop(_ context.Context, s *Server, c *Conn, args []string) bool {
	return doListPop(s, c, args, false)
}

func doListPop(s *Server, c *Conn, args []string, head bool) bool {
	single := len(args) == 2
	count := 1
	if !single {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			writeErr(s, c, keyspace.ErrNotInteger)
			return false
		}
		count = n
	}

	items, err := s.KS.Pop(args[1], count, head)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		if single {
			if len(items) == 0 {
				_ = resp.WriteNullBulk(c.bw)
				return
			}
			_ = resp.WriteBulkString(c.bw, items[0])
			return
		}
		_ = resp.WriteArrayHeader(c.bw, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(c.bw, it)
		}
	})
	return err == nil && len(items) > 0
}

func cmdLLen(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.KS.Len(args[1])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return false
}

func cmdLRange(_ context.Context, s *Server, c *Conn, args []string) bool {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		writeErr(s, c, errSyntax)
		return false
	}
	items, err := s.KS.Range(args[1], start, stop)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteArrayHeader(c.bw, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(c.bw, it)
		}
	})
	return false
}

func cmdLIndex(_ context.Context, s *Server, c *Conn, args []string) bool {
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		writeErr(s, c, errSyntax)
		return false
	}
	v, ok, kerr := s.KS.Index(args[1], idx)
	s.reply(c, func() {
		if kerr != nil {
			_ = resp.WriteError(c.bw, kerr.Error())
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

func cmdLSet(_ context.Context, s *Server, c *Conn, args []string) bool {
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		writeErr(s, c, errSyntax)
		return false
	}
	kerr := s.KS.SetIndex(args[1], idx, args[3])
	s.reply(c, func() {
		if kerr != nil {
			_ = resp.WriteError(c.bw, kerr.Error())
			return
		}
		_ = resp.WriteSimpleString(c.bw, "OK")
	})
	return kerr == nil
}

func cmdBLPop(ctx context.Context, s *Server, c *Conn, args []string) bool {
	return doBlockingPop(ctx, s, c, args, true)
}

func cmdBRPop(ctx context.Context, s *Server, c *Conn, args []string) bool {
	return doBlockingPop(ctx, s, c, args, false)
}

func doBlockingPop(ctx context.Context, s *Server, c *Conn, args []string, head bool) bool {
	timeoutSec, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil || timeoutSec < 0 {
		writeErr(s, c, errSyntax)
		return false
	}
	timeout := time.Duration(timeoutSec * float64(time.Second))
	keys := args[1 : len(args)-1]

	// Non-blocking sweep first: if any listed key already has an
	// element, take it without registering a waiter at all.
	for _, key := range keys {
		items, perr := s.KS.Pop(key, 1, head)
		if perr == nil && len(items) > 0 {
			s.reply(c, func() {
				_ = resp.WriteArrayHeader(c.bw, 2)
				_ = resp.WriteBulkString(c.bw, key)
				_ = resp.WriteBulkString(c.bw, items[0])
			})
			return true
		}
	}

	// Otherwise park on every listed key at once, so a push to any one
	// of them wakes this waiter — the same multi-key semantics cmdXRead
	// gets from StreamCoordinator.Read.
	res, ok := s.ListC.BPop(ctx, s.KS, keys, timeout, head)
	s.reply(c, func() {
		if !ok {
			_ = resp.WriteNullArray(c.bw)
			return
		}
		_ = resp.WriteArrayHeader(c.bw, 2)
		_ = resp.WriteBulkString(c.bw, res.Key)
		_ = resp.WriteBulkString(c.bw, res.Value)
	})
	return ok
}
