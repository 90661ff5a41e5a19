package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// recordingSink captures envelopes handed to the sink.
type recordingSink struct {
	envelopes []*proto.Envelope
}

func (s *recordingSink) Register(env *proto.Envelope) {
	s.envelopes = append(s.envelopes, env)
}

func newTestRelay(secret string, sink Sink) *Relay {
	logger := zerolog.Nop()
	return NewRelay(NewRegistry(), secret, sink, &logger)
}

// mustEnvelope waits for the next envelope of the given response kind,
// skipping others. kind "" matches untagged replies such as pong.
func mustEnvelope(t *testing.T, c *Client, kind string) *proto.Envelope {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.Outbox():
			if env == nil {
				continue
			}
			if env.Event == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("expected envelope kind %q not received", kind)
			return nil
		}
	}
}

// mustSilent asserts that no envelope arrives for the client.
func mustSilent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case env := <-c.Outbox():
		t.Fatalf("expected no envelope, got %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

// authClient runs a successful auth for a fresh client and drains the
// welcome and success replies.
func authClient(t *testing.T, r *Relay, id, secret string) *Client {
	t.Helper()

	c := NewClient("conn-" + id)
	r.HandleOpen(c)
	mustEnvelope(t, c, proto.EventWelcome)

	r.HandleFrame(c, []byte(`{"Action":"auth","Id":"`+id+`","Token":"`+secret+`"}`))
	env := mustEnvelope(t, c, proto.EventSuccess)
	if env.Message != "Authentication successful" {
		t.Fatalf("unexpected auth reply: %+v", env)
	}
	return c
}

// subscribeClient subscribes an authenticated client and drains the ack.
func subscribeClient(t *testing.T, r *Relay, c *Client, channel string) {
	t.Helper()

	r.HandleFrame(c, []byte(`{"Action":"subscribe","Channel":"`+channel+`"}`))
	mustEnvelope(t, c, proto.EventSuccess)
}
