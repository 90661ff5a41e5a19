package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/core"
	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// errCloseRequested signals that the core asked for the session to end
// (auth failure or watchdog), as opposed to a transport-level error.
var errCloseRequested = errors.New("close requested by server")

// WSHandler upgrades HTTP connections and bridges them to the relay core.
type WSHandler struct {
	relay       *core.Relay
	authTimeout time.Duration
	rateLimit   int
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. rateLimit caps inbound
// frames per connection per minute; zero disables the cap.
func NewWSHandler(relay *core.Relay, authTimeout time.Duration, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{relay: relay, authTimeout: authTimeout, rateLimit: rateLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString())
	h.log.Debug().Str("conn_id", client.ConnID).Str("remote", r.RemoteAddr).Msg("ws connection established")

	h.relay.HandleOpen(client)
	defer h.relay.HandleClose(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Sessions that never authenticate are shut down after a grace period
	// so a silent peer cannot hold a connection open forever.
	if h.authTimeout > 0 {
		watchdog := time.AfterFunc(h.authTimeout, func() {
			if !client.Authenticated() {
				h.log.Warn().Str("conn_id", client.ConnID).Msg("auth timeout, closing connection")
				client.RequestClose()
			}
		})
		defer watchdog.Stop()
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errCloseRequested) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop feeds raw frames to the relay; envelope parsing and error
// replies are the relay's job.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rateLimit)
	defer limiter.stop()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow() {
			h.log.Warn().Str("conn_id", client.ConnID).Msg("message rate limit exceeded")
			client.Deliver(proto.Error("Rate limit exceeded"))
			continue
		}
		h.relay.HandleFrame(client, data)
	}
}

// writeLoop drains the client outbox onto the socket. When the core
// requests teardown, pending envelopes (the auth error, typically) are
// flushed before the loop exits.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case env := <-client.Outbox():
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws envelope")
				return err
			}
		case <-client.Done():
			for {
				select {
				case env := <-client.Outbox():
					if err := wsjson.Write(ctx, conn, env); err != nil {
						return err
					}
				default:
					return errCloseRequested
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
