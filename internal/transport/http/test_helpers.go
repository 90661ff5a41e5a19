package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/auth"
	"github.com/chanrelay/chanrelay-server/internal/chanlog"
	"github.com/chanrelay/chanrelay-server/internal/config"
	"github.com/chanrelay/chanrelay-server/internal/core"
	"github.com/chanrelay/chanrelay-server/internal/proto"
	"github.com/chanrelay/chanrelay-server/internal/store/sqlite"
)

const (
	testSharedSecret = "secret"
	testAPIKey       = "test-api-key"
)

type testEnv struct {
	ts      *httptest.Server
	relay   *core.Relay
	history *chanlog.Store
	auth    *auth.Service
}

// newTestEnv stands up a full server over in-memory stores. mutate may
// adjust the config before the router is built.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	logger := zerolog.Nop()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-jwt-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	history := chanlog.New(t.TempDir(), 16, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go history.Run(ctx)

	relay := core.NewRelay(core.NewRegistry(), testSharedSecret, history, &logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.AuthTimeout = 5 * time.Second
	cfg.SharedSecret = testSharedSecret
	cfg.APIKey = testAPIKey
	cfg.JWTSecret = "test-jwt-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	server := NewServer(relay, history, authService, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, relay: relay, history: history, auth: authService}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, ctx context.Context, env *testEnv) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// nextEnvelope reads one envelope off the socket.
func nextEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// sendEnvelope writes one envelope to the socket.
func sendEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, env proto.Envelope) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, env); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

// wsAuthSubscribe drives a connection through welcome, auth and subscribe.
func wsAuthSubscribe(t *testing.T, ctx context.Context, conn *websocket.Conn, id, channel string) {
	t.Helper()

	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventWelcome {
		t.Fatalf("expected welcome, got %+v", env)
	}

	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionAuth, Id: id, Token: testSharedSecret})
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventSuccess || env.Message != "Authentication successful" {
		t.Fatalf("expected auth success, got %+v", env)
	}

	sendEnvelope(t, ctx, conn, proto.Envelope{Action: proto.ActionSubscribe, Channel: channel})
	if env := nextEnvelope(t, ctx, conn); env.Event != proto.EventSuccess {
		t.Fatalf("expected subscribe ack, got %+v", env)
	}
}

// expectNoEnvelope asserts the socket stays silent for a short window.
func expectNoEnvelope(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err == nil {
		t.Fatalf("expected no envelope, got %+v", env)
	}
}
