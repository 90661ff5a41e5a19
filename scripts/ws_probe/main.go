// ws_probe is a smoke-test client: it connects, authenticates with the
// shared secret, joins a channel, sends one message and prints everything
// the relay pushes back until the timeout elapses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chanrelay/chanrelay-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_probe: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	id := flag.String("id", "probe", "client id to authenticate as")
	token := flag.String("token", "your_auth_token_here", "shared secret")
	channel := flag.String("channel", "general", "channel to subscribe to")
	text := flag.String("text", "hello from ws_probe", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(env proto.Envelope) error {
		if err := wsjson.Write(ctx, conn, env); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := send(proto.Envelope{Action: proto.ActionAuth, Id: *id, Token: *token}); err != nil {
		return err
	}
	if err := send(proto.Envelope{Action: proto.ActionSubscribe, Channel: *channel}); err != nil {
		return err
	}
	if err := send(proto.Envelope{Action: proto.ActionSend, Channel: *channel, Message: *text}); err != nil {
		return err
	}

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch {
		case env.Event != "":
			fmt.Printf("[%s] %s", env.Event, env.Message)
			if env.Id != "" {
				fmt.Printf(" (from %s)", env.Id)
			}
			fmt.Println()
		default:
			fmt.Printf("%s\n", env.Message)
		}
	}
}
