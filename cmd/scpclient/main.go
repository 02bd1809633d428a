// Command scpclient is the interactive SCP reference client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scpchat/internal/client"
	"scpchat/internal/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	flags := flag.NewFlagSet("scpclient", flag.ContinueOnError)
	addr := flags.String("addr", "127.0.0.1:9999", "SCP server address (host:port), or a ws:// URL with -ws")
	useWS := flags.Bool("ws", false, "connect over WebSocket instead of TCP")
	name := flags.String("name", "", "send /connect <name> right after connecting")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dial(ctx, *addr, *useWS)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Connected to %s. Type /help for commands.\n", *addr)
	if *name != "" {
		in = io.MultiReader(strings.NewReader("/connect "+*name+"\n"), in)
	}

	return client.New(conn).Run(ctx, in, out)
}

func dial(ctx context.Context, addr string, useWS bool) (transport.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if useWS {
		conn, err := transport.DialWebSocket(dialCtx, websocketURL(addr), 10*time.Second)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	conn, err := transport.DialTCP(dialCtx, addr, transport.TCPOptions{
		WriteTimeout: 10 * time.Second,
		DrainTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// websocketURL accepts either a full ws:// or wss:// URL or a bare host:port
// served at /ws.
func websocketURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + "/ws"
}
