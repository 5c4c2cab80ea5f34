// Command redis-cli is a thin RESP client: it runs a single command
// given on the command line, or drops into an interactive REPL when
// none is given.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alwaysvivek/redis-go/internal/resp"
)

func main() {
	app := &cli.App{
		Name:      "redis-cli",
		Usage:     "talk to a redis-go server over RESP",
		ArgsUsage: "[command [arg ...]]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"h"},
				Usage:   "server host",
				EnvVars: []string{"REDISCLI_HOST"},
				Value:   "127.0.0.1",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "server port",
				EnvVars: []string{"REDISCLI_PORT"},
				Value:   6379,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	client := &client{
		bw: bufio.NewWriter(conn),
		br: bufio.NewReader(conn),
	}

	if args := c.Args().Slice(); len(args) > 0 {
		reply, err := client.do(args)
		if err != nil {
			return err
		}
		fmt.Println(reply.Format())
		return nil
	}

	return client.repl(addr)
}

// client wraps one RESP connection, sending whole commands and
// reading back exactly one reply per command — the same request/reply
// discipline the server's own dispatch loop expects, except redis-cli
// never pipelines.
type client struct {
	bw *bufio.Writer
	br *bufio.Reader
}

func (cl *client) do(args []string) (resp.Reply, error) {
	if _, err := cl.bw.Write(resp.EncodeCommand(args)); err != nil {
		return resp.Reply{}, err
	}
	if err := cl.bw.Flush(); err != nil {
		return resp.Reply{}, err
	}
	return resp.ReadReply(cl.br)
}

func (cl *client) repl(addr string) error {
	fmt.Printf("connected to %s, type commands or \"quit\" to exit\n", addr)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", addr)
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		if strings.EqualFold(args[0], "quit") || strings.EqualFold(args[0], "exit") {
			return nil
		}
		reply, err := cl.do(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return err
		}
		fmt.Println(reply.Format())
	}
}
