// Package core implements the relay's connection/channel state machine and
// the event dispatch and broadcast engine. Transport goroutines feed raw
// frames in; the core mutates the Registry and pushes envelopes onto
// per-client outboxes. The Registry mutex is the only serialization point.
package core

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// Rejection reasons sent back to peers. The exact strings are part of the
// observable protocol.
const (
	reasonInvalidJSON      = "Invalid JSON format"
	reasonUnknownAction    = "Unknown action"
	reasonMissingIDOrToken = "Missing Id or Token"
	reasonInvalidToken     = "Invalid authentication token"
	reasonNotAuthenticated = "Client not authenticated"
	reasonMissingChannel   = "Missing Channel"
	reasonNotSubscribed    = "You are not subscribed to this channel"
)

// Sink receives a copy of every successfully relayed event for durable
// append. Calls are fire-and-forget: the relay never blocks on, retries,
// or surfaces sink failures.
type Sink interface {
	Register(env *proto.Envelope)
}

// Relay classifies inbound envelopes and runs the matching handler against
// the Registry. It owns no per-connection state of its own.
type Relay struct {
	registry *Registry
	secret   []byte
	sink     Sink
	log      *zerolog.Logger
}

// NewRelay constructs a relay over the given registry. sink may be nil.
func NewRelay(registry *Registry, secret string, sink Sink, logger *zerolog.Logger) *Relay {
	return &Relay{
		registry: registry,
		secret:   []byte(secret),
		sink:     sink,
		log:      logger,
	}
}

// Registry exposes the membership table for read-only admin consumers.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// HandleOpen runs when the transport accepts a session.
func (r *Relay) HandleOpen(c *Client) {
	c.Deliver(proto.Welcome())
}

// HandleFrame parses one raw inbound frame and dispatches it. A malformed
// frame or unknown action yields a single error envelope and nothing else.
func (r *Relay) HandleFrame(c *Client, raw []byte) {
	var env proto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.log.Warn().Err(err).Str("conn_id", c.ConnID).Msg("unparsable frame")
		c.Deliver(proto.Error(reasonInvalidJSON))
		return
	}

	switch env.Action {
	case proto.ActionAuth:
		r.handleAuth(c, &env)
	case proto.ActionSubscribe:
		r.handleSubscribe(c, &env)
	case proto.ActionSend:
		r.handleSend(c, &env)
	case proto.ActionPing:
		c.Deliver(proto.Pong())
	default:
		r.log.Warn().Str("action", env.Action).Str("conn_id", c.ConnID).Msg("unknown action")
		c.Deliver(proto.Error(reasonUnknownAction))
	}
}

// handleAuth checks credentials and promotes the session. Both failure
// modes reply with an error and force the transport session closed; this
// is the only error class that terminates a connection.
func (r *Relay) handleAuth(c *Client, env *proto.Envelope) {
	if env.Id == "" || env.Token == "" {
		r.log.Warn().Str("conn_id", c.ConnID).Msg("auth rejected: missing id or token")
		c.Deliver(proto.Error(reasonMissingIDOrToken))
		c.RequestClose()
		return
	}

	if subtle.ConstantTimeCompare([]byte(env.Token), r.secret) != 1 {
		r.log.Warn().Str("conn_id", c.ConnID).Str("client_id", env.Id).Msg("auth rejected: invalid token")
		c.Deliver(proto.Error(reasonInvalidToken))
		c.RequestClose()
		return
	}

	r.registry.AddAuthenticated(env.Id, c)
	r.log.Info().Str("conn_id", c.ConnID).Str("client_id", env.Id).Msg("client authenticated")
	c.Deliver(proto.Success("Authentication successful"))
}

// handleSubscribe adds the client to a channel and tells existing members.
// The presence notice goes out before the joiner's acknowledgment.
func (r *Relay) handleSubscribe(c *Client, env *proto.Envelope) {
	if !r.registry.Contains(c) {
		c.Deliver(proto.Error(reasonNotAuthenticated))
		return
	}
	if env.Channel == "" {
		c.Deliver(proto.Error(reasonMissingChannel))
		return
	}

	r.registry.Subscribe(c, env.Channel)
	r.log.Debug().Str("client_id", c.ID()).Str("channel", env.Channel).Msg("subscribed")

	r.Broadcast(env.Channel, proto.Subscribed(c.ID()), c)
	c.Deliver(proto.Success("Subscribed to channel " + env.Channel))
}

// handleSend fans a chat event out to the channel, excluding the sender,
// then hands the original envelope to the sink.
func (r *Relay) handleSend(c *Client, env *proto.Envelope) {
	if env.Channel == "" {
		c.Deliver(proto.Error(reasonMissingChannel))
		return
	}
	if !r.registry.Contains(c) {
		c.Deliver(proto.Error(reasonNotAuthenticated))
		return
	}
	if !r.registry.Subscribed(c, env.Channel) {
		c.Deliver(proto.Error(reasonNotSubscribed))
		return
	}

	r.Broadcast(env.Channel, proto.ChatEvent(env.Message, c.ID(), env.Sender), c)

	if r.sink != nil {
		r.sink.Register(env)
	}
}

// HandleClose runs on transport-level close. A session that never
// authenticated leaves no trace beyond a log line. Departure notices are
// computed per channel, so a peer sharing several channels hears about the
// departure once per shared channel.
func (r *Relay) HandleClose(c *Client) {
	if !r.registry.Contains(c) {
		r.log.Debug().Str("conn_id", c.ConnID).Msg("unauthenticated client disconnected")
		return
	}

	channels := r.registry.ChannelsOf(c)
	r.registry.Remove(c)
	r.log.Info().Str("client_id", c.ID()).Msg("client disconnected")

	notice := proto.Disconnected(c.ID())
	for _, channel := range channels {
		r.Broadcast(channel, notice, c)
	}
}

// Broadcast delivers env to every current member of channel except exclude
// (which may be nil). Delivery is per-client and best-effort: a slow or
// closing peer loses its copy without affecting the rest. Returns the
// number of successful deliveries.
func (r *Relay) Broadcast(channel string, env *proto.Envelope, exclude *Client) int {
	sent := 0
	for _, m := range r.registry.MembersOf(channel) {
		if m == exclude {
			continue
		}
		if m.Deliver(env) {
			sent++
		} else {
			r.log.Debug().Str("client_id", m.ID()).Str("channel", channel).Msg("dropped delivery to slow or closed client")
		}
	}
	return sent
}
