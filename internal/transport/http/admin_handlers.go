package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/chanlog"
	"github.com/chanrelay/chanrelay-server/internal/core"
	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// AdminHandlers exposes registry state and operator-initiated broadcasts.
// These endpoints read the same membership table the relay mutates; the
// broadcast endpoint reuses the fan-out engine but skips the subscription
// precondition a socket peer would face.
type AdminHandlers struct {
	relay   *core.Relay
	history *chanlog.Store
	log     *zerolog.Logger
}

// NewAdminHandlers creates a new admin handlers instance.
func NewAdminHandlers(relay *core.Relay, history *chanlog.Store, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		relay:   relay,
		history: history,
		log:     logger,
	}
}

// ClientsResponse lists connected client identities.
type ClientsResponse struct {
	Total   int      `json:"total"`
	Clients []string `json:"clients"`
}

// ChannelClientsResponse lists the members of one channel.
type ChannelClientsResponse struct {
	Channel string   `json:"channel"`
	Total   int      `json:"total"`
	Clients []string `json:"clients"`
}

// ChannelsResponse lists the distinct channel names currently observed.
type ChannelsResponse struct {
	Channels []string `json:"channels"`
}

// BroadcastResponse reports how many deliveries a broadcast made.
type BroadcastResponse struct {
	Success bool `json:"success"`
	Send    int  `json:"send"`
}

// ListClients handles GET /websocket/clients.
func (h *AdminHandlers) ListClients(c *gin.Context) {
	reg := h.relay.Registry()
	c.JSON(http.StatusOK, ClientsResponse{
		Total:   reg.Count(),
		Clients: reg.IDs(),
	})
}

// ClientsByChannel handles GET /websocket/clients/by-channel?channel=.
func (h *AdminHandlers) ClientsByChannel(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing channel parameter"})
		return
	}

	clients := h.relay.Registry().MemberIDs(channel)
	c.JSON(http.StatusOK, ChannelClientsResponse{
		Channel: channel,
		Total:   len(clients),
		Clients: clients,
	})
}

// ListChannels handles GET /websocket/channels.
func (h *AdminHandlers) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, ChannelsResponse{
		Channels: h.relay.Registry().AllChannels(),
	})
}

// ChannelEvents handles GET /websocket/channel/events?channel=&date=.
// Date defaults to today.
func (h *AdminHandlers) ChannelEvents(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing channel parameter"})
		return
	}

	c.JSON(http.StatusOK, h.history.ReadHistory(channel, c.Query("date")))
}

// Broadcast handles POST /websocket/broadcast?channel=&message=&id=&sender=.
// It fans the event out to the channel's current members without the
// subscription check a socket-originated send goes through.
func (h *AdminHandlers) Broadcast(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing channel parameter"})
		return
	}
	message := c.Query("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing message parameter"})
		return
	}
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing id parameter"})
		return
	}
	sender := c.Query("sender")
	if sender == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing sender parameter"})
		return
	}

	env := proto.ChatEvent(message, id, sender)
	sent := h.relay.Broadcast(channel, env, nil)

	// The wire envelope carries no channel; the history entry needs one to
	// land in the right file.
	logEnv := *env
	logEnv.Channel = channel
	h.history.Register(&logEnv)

	h.log.Info().Str("channel", channel).Int("send", sent).Msg("operator broadcast")
	c.JSON(http.StatusOK, BroadcastResponse{Success: true, Send: sent})
}
