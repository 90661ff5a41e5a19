package core

import (
	"sync"
	"sync/atomic"

	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// outboxSize bounds per-client delivery buffering. A client that falls this
// far behind starts losing broadcasts rather than stalling senders.
const outboxSize = 32

// Client is one live transport session as seen by the core layer.
//
// The channels set is guarded by the Registry mutex; nothing outside the
// Registry may touch it. Everything else is safe for concurrent use.
type Client struct {
	// ConnID correlates log lines for a session before it has declared an id.
	ConnID string

	id     atomic.Value // string, set once by Registry.AddAuthenticated
	authed atomic.Bool

	outbox    chan *proto.Envelope
	dropped   atomic.Int64
	closeOnce sync.Once
	done      chan struct{}

	channels map[string]struct{}
}

// NewClient constructs an unauthenticated client for a fresh transport session.
func NewClient(connID string) *Client {
	return &Client{
		ConnID:   connID,
		outbox:   make(chan *proto.Envelope, outboxSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// ID returns the identity declared during authentication, or "" before it.
func (c *Client) ID() string {
	if v := c.id.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Authenticated reports whether the client completed authentication.
func (c *Client) Authenticated() bool {
	return c.authed.Load()
}

// Deliver enqueues an envelope for the transport write loop. It never blocks:
// a closed or saturated client loses the envelope and Deliver returns false.
func (c *Client) Deliver(env *proto.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- env:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Outbox is drained by the transport write loop.
func (c *Client) Outbox() <-chan *proto.Envelope {
	return c.outbox
}

// RequestClose asks the transport to tear the session down. Idempotent;
// used by the core after an authentication failure.
func (c *Client) RequestClose() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the core has requested teardown.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many envelopes were lost to a full outbox.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}
