package server

import (
	"context"

	"github.com/alwaysvivek/redis-go/internal/resp"
)

func cmdSubscribe(_ context.Context, s *Server, c *Conn, args []string) bool {
	s.reply(c, func() {
		for _, ch := range args[1:] {
			if !c.subscribed[ch] {
				c.subscribed[ch] = true
				s.PS.Subscribe(ch, c)
			}
			_ = resp.WriteArrayHeader(c.bw, 3)
			_ = resp.WriteBulkString(c.bw, "subscribe")
			_ = resp.WriteBulkString(c.bw, ch)
			_ = resp.WriteInteger(c.bw, int64(len(c.subscribed)))
		}
	})
	return false
}

func cmdUnsubscribe(_ context.Context, s *Server, c *Conn, args []string) bool {
	channels := args[1:]
	if len(channels) == 0 {
		channels = c.subscribedChannels()
	}
	s.reply(c, func() {
		if len(channels) == 0 {
			_ = resp.WriteArrayHeader(c.bw, 3)
			_ = resp.WriteBulkString(c.bw, "unsubscribe")
			_ = resp.WriteNullBulk(c.bw)
			_ = resp.WriteInteger(c.bw, 0)
			return
		}
		for _, ch := range channels {
			if c.subscribed[ch] {
				delete(c.subscribed, ch)
				s.PS.Unsubscribe(ch, c)
			}
			_ = resp.WriteArrayHeader(c.bw, 3)
			_ = resp.WriteBulkString(c.bw, "unsubscribe")
			_ = resp.WriteBulkString(c.bw, ch)
			_ = resp.WriteInteger(c.bw, int64(len(c.subscribed)))
		}
	})
	return false
}

func cmdPublish(_ context.Context, s *Server, c *Conn, args []string) bool {
	n := s.PS.Publish(args[1], args[2])
	s.reply(c, func() { _ = resp.WriteInteger(c.bw, int64(n)) })
	return false
}
