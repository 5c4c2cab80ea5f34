package server

import (
	"context"
	"strconv"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

func cmdZAdd(_ context.Context, s *Server, c *Conn, args []string) bool {
	rest := args[2:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		writeErr(s, c, wrongArgs("ZADD"))
		return false
	}
	items := make([]keyspace.ZItem, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			writeErr(s, c, errSyntax)
			return false
		}
		items = append(items, keyspace.ZItem{Score: score, Member: rest[i+1]})
	}
	n, err := s.KS.ZAdd(args[1], items)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return err == nil
}

func cmdZScore(_ context.Context, s *Server, c *Conn, args []string) bool {
	score, ok, err := s.KS.ZScore(args[1], args[2])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(c.bw)
			return
		}
		_ = resp.WriteBulkString(c.bw, strconv.FormatFloat(score, 'f', -1, 64))
	})
	return false
}

func cmdZRank(_ context.Context, s *Server, c *Conn, args []string) bool {
	rank, ok, err := s.KS.ZRank(args[1], args[2])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(c.bw)
			return
		}
		_ = resp.WriteInteger(c.bw, int64(rank))
	})
	return false
}

func cmdZRange(_ context.Context, s *Server, c *Conn, args []string) bool {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		writeErr(s, c, errSyntax)
		return false
	}
	items, err := s.KS.ZRange(args[1], start, stop)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteArrayHeader(c.bw, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(c.bw, it.Member)
		}
	})
	return false
}

func cmdZCard(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.KS.ZCard(args[1])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return false
}

func cmdZRem(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.KS.ZRem(args[1], args[2:])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return err == nil && n > 0
}
