package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/chanrelay/chanrelay-server/internal/config"
	"github.com/chanrelay/chanrelay-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestRelayScenario(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, connA, "srv1", "general")

	connB := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, connB, "srv2", "general")

	// A hears about B joining.
	notice := nextEnvelope(t, ctx, connA)
	if notice.Event != proto.EventSubscribed || notice.Id != "srv2" {
		t.Fatalf("expected subscribed notice for srv2, got %+v", notice)
	}

	// B sends; A receives the fan-out, B hears nothing back.
	sendEnvelope(t, ctx, connB, proto.Envelope{Action: proto.ActionSend, Channel: "general", Message: "hi"})

	event := nextEnvelope(t, ctx, connA)
	if event.Event != proto.EventEvent || event.Message != "hi" || event.Id != "srv2" {
		t.Fatalf("unexpected fan-out: %+v", event)
	}
	expectNoEnvelope(t, connB)
}

func TestAuthFailureClosesSocket(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionAuth, Id: "x", Token: "bad"})

	reply := nextEnvelope(t, ctx, conn)
	if reply.Event != proto.EventError || reply.Message != "Invalid authentication token" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// The server tears the session down after the error reply.
	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	if _, _, err := conn.Read(readCtx); err == nil || readCtx.Err() != nil {
		t.Fatalf("connection still open after auth failure")
	}
}

func TestPingBeforeAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionPing, Message: "ping"})

	pong := nextEnvelope(t, ctx, conn)
	if pong.Event != "" || pong.Message != "pong" {
		t.Fatalf("unexpected ping reply: %+v", pong)
	}
}

func TestAuthWatchdogClosesIdleSessions(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AuthTimeout = 100 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	// Never authenticate; the watchdog should end the session.
	readCtx, readCancel := context.WithTimeout(ctx, 3*time.Second)
	defer readCancel()
	if _, _, err := conn.Read(readCtx); err == nil || readCtx.Err() != nil {
		t.Fatalf("unauthenticated connection survived the watchdog")
	}
}

func TestMalformedFrameKeepsSocketOpen(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}

	reply := nextEnvelope(t, ctx, conn)
	if reply.Event != proto.EventError || reply.Message != "Invalid JSON format" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// The session survives and still answers pings.
	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionPing, Message: "ping"})
	if pong := nextEnvelope(t, ctx, conn); pong.Message != "pong" {
		t.Fatalf("unexpected reply after error: %+v", pong)
	}
}

func TestMessageRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.MessageRateLimit = 2
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	for i := 0; i < 2; i++ {
		sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionPing, Message: "ping"})
		if pong := nextEnvelope(t, ctx, conn); pong.Message != "pong" {
			t.Fatalf("unexpected reply %d: %+v", i, pong)
		}
	}

	// The third frame inside the window is rejected without dispatch.
	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionPing, Message: "ping"})
	reply := nextEnvelope(t, ctx, conn)
	if reply.Event != proto.EventError || reply.Message != "Rate limit exceeded" {
		t.Fatalf("expected rate limit error, got %+v", reply)
	}
}

func TestDisconnectNotifiesChannelPeers(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, connA, "srv1", "general")

	connB := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, connB, "srv2", "general")
	nextEnvelope(t, ctx, connA) // subscribed notice for srv2

	_ = connB.Close(websocket.StatusNormalClosure, "bye")

	notice := nextEnvelope(t, ctx, connA)
	if notice.Event != proto.EventDisconnected || notice.Id != "srv2" {
		t.Fatalf("expected disconnect notice for srv2, got %+v", notice)
	}
}
