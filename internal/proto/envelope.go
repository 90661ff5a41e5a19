// Package proto defines the wire contract between the relay and its peers.
//
// Both directions share one flat JSON envelope with capitalized keys; which
// fields are meaningful depends on the Action (inbound) or Event (outbound)
// discriminator. The two discriminators are never interpreted on the same
// message.
package proto

// Inbound action kinds.
const (
	ActionAuth      = "auth"
	ActionSubscribe = "subscribe"
	ActionSend      = "send"
	ActionPing      = "ping"
)

// Outbound response kinds.
const (
	EventWelcome       = "welcome"
	EventAuthenticated = "authenticated"
	EventError         = "error"
	EventSuccess       = "success"
	EventSubscribed    = "subscribed"
	EventEvent         = "event"
	EventDisconnected  = "disconnected"
)

// Envelope is the single message shape used both inbound and outbound.
// The key casing is part of the protocol; existing peers depend on it.
type Envelope struct {
	Event   string `json:"Event,omitempty"`
	Action  string `json:"Action,omitempty"`
	Message string `json:"Message"`
	Id      string `json:"Id,omitempty"`
	Channel string `json:"Channel,omitempty"`
	Sender  string `json:"Sender,omitempty"`
	Token   string `json:"Token,omitempty"`
}

// Welcome is sent once when a transport session is accepted.
func Welcome() *Envelope {
	return &Envelope{Event: EventWelcome, Message: "Connected to WebSocket server"}
}

// Error carries a short human-readable rejection reason.
func Error(msg string) *Envelope {
	return &Envelope{Event: EventError, Message: msg}
}

// Success acknowledges an accepted action to its originator.
func Success(msg string) *Envelope {
	return &Envelope{Event: EventSuccess, Message: msg}
}

// Subscribed is the presence notice fanned out when a client joins a channel.
func Subscribed(id string) *Envelope {
	return &Envelope{Event: EventSubscribed, Message: "Client " + id + " connected", Id: id}
}

// ChatEvent is the fan-out form of a send action.
func ChatEvent(msg, id, sender string) *Envelope {
	return &Envelope{Event: EventEvent, Message: msg, Id: id, Sender: sender}
}

// Disconnected is the departure notice fanned out per shared channel.
func Disconnected(id string) *Envelope {
	return &Envelope{Event: EventDisconnected, Message: "Client " + id + " disconnected", Id: id}
}

// Pong answers a ping. It deliberately carries no response kind.
func Pong() *Envelope {
	return &Envelope{Message: "pong"}
}
