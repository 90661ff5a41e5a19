package core

import (
	"testing"
)

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	c := NewClient("conn-1")
	reg.AddAuthenticated("srv1", c)

	reg.Remove(c)
	reg.Remove(c)

	if reg.Contains(c) {
		t.Fatalf("client still present after remove")
	}
	if ids := reg.IDs(); len(ids) != 0 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestRegistryMembersOfRecomputes(t *testing.T) {
	reg := NewRegistry()

	a := NewClient("conn-a")
	b := NewClient("conn-b")
	reg.AddAuthenticated("a", a)
	reg.AddAuthenticated("b", b)

	reg.Subscribe(a, "general")
	if members := reg.MembersOf("general"); len(members) != 1 || members[0] != a {
		t.Fatalf("unexpected members: %v", members)
	}

	reg.Subscribe(b, "general")
	if members := reg.MembersOf("general"); len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	reg.Remove(a)
	if members := reg.MembersOf("general"); len(members) != 1 || members[0] != b {
		t.Fatalf("unexpected members after remove: %v", members)
	}
}

func TestRegistrySubscribeRejectsUnknownClient(t *testing.T) {
	reg := NewRegistry()

	c := NewClient("conn-1")
	if reg.Subscribe(c, "general") {
		t.Fatalf("subscribe should fail for unregistered client")
	}
	if len(reg.MembersOf("general")) != 0 {
		t.Fatalf("unregistered client must not appear in membership")
	}
}

func TestRegistryChannelViews(t *testing.T) {
	reg := NewRegistry()

	a := NewClient("conn-a")
	b := NewClient("conn-b")
	reg.AddAuthenticated("a", a)
	reg.AddAuthenticated("b", b)
	reg.Subscribe(a, "alpha")
	reg.Subscribe(a, "beta")
	reg.Subscribe(b, "beta")

	channels := reg.AllChannels()
	if len(channels) != 2 || channels[0] != "alpha" || channels[1] != "beta" {
		t.Fatalf("unexpected channels: %v", channels)
	}

	ids := reg.MemberIDs("beta")
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected member ids: %v", ids)
	}

	if reg.Count() != 2 {
		t.Fatalf("unexpected count: %d", reg.Count())
	}
}
