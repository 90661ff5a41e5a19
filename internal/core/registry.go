package core

import (
	"sort"
	"sync"
)

// Registry is the authoritative membership table: which clients are live,
// which identity each one declared, and which channels each one joined.
//
// A client appears in the connected set if and only if it completed
// authentication; only connected clients are eligible for channel
// membership and broadcast delivery. All three structures are guarded by
// one mutex because subscribe, send and disconnect run on different
// connection goroutines.
type Registry struct {
	mu        sync.RWMutex
	connected map[*Client]struct{}
	byID      map[string]*Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connected: make(map[*Client]struct{}),
		byID:      make(map[string]*Client),
	}
}

// AddAuthenticated promotes a client to authenticated under the declared id.
// A second authentication with an id already present overwrites the byID
// entry without closing the prior session; both stay in the connected set
// and the stale one drains out on its own disconnect.
func (r *Registry) AddAuthenticated(id string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.id.Store(id)
	c.authed.Store(true)
	r.connected[c] = struct{}{}
	r.byID[id] = c
}

// Remove drops a client from the connected set. Idempotent. The byID entry
// is only deleted while it still points at this client, so a fresher
// session that reclaimed the id keeps its mapping.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connected, c)
	if id := c.ID(); id != "" && r.byID[id] == c {
		delete(r.byID, id)
	}
}

// Contains resolves a transport session to its registry entry. False means
// the client never authenticated or was already removed; callers treat
// that as "reject the action", never as a fatal condition.
func (r *Registry) Contains(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.connected[c]
	return ok
}

// Subscribe adds a channel to the client's membership set. Re-subscribing
// is a no-op. Returns false if the client is not connected.
func (r *Registry) Subscribe(c *Client, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connected[c]; !ok {
		return false
	}
	c.channels[channel] = struct{}{}
	return true
}

// Subscribed reports whether the client is currently a member of channel.
func (r *Registry) Subscribed(c *Client, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := c.channels[channel]
	return ok
}

// MembersOf snapshots the clients currently subscribed to channel.
// Membership is not indexed by channel; the scan is recomputed per call,
// which is fine at the scale this relay targets.
func (r *Registry) MembersOf(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []*Client
	for c := range r.connected {
		if _, ok := c.channels[channel]; ok {
			members = append(members, c)
		}
	}
	return members
}

// ChannelsOf snapshots the channels a client belongs to.
func (r *Registry) ChannelsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return channels
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connected)
}

// IDs lists the identities currently mapped, sorted for stable output.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemberIDs lists the identities of clients subscribed to channel, sorted.
func (r *Registry) MemberIDs(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for c := range r.connected {
		if _, ok := c.channels[channel]; ok {
			ids = append(ids, c.ID())
		}
	}
	sort.Strings(ids)
	return ids
}

// AllChannels lists the distinct channel names observed across all
// connected clients, sorted.
func (r *Registry) AllChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for c := range r.connected {
		for ch := range c.channels {
			seen[ch] = struct{}{}
		}
	}
	channels := make([]string, 0, len(seen))
	for ch := range seen {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}
