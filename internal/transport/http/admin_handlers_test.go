package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay-server/internal/chanlog"
	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// operatorToken registers an operator through the API and returns its token.
func operatorToken(t *testing.T, env *testEnv) string {
	t.Helper()

	body := bytes.NewBufferString(`{"email":"ops@example.com","password":"password123"}`)
	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/register", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected register status %d: %s", resp.StatusCode, raw)
	}

	var auth AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return auth.Token
}

func adminGet(t *testing.T, env *testEnv, token, path string, out any) int {
	t.Helper()

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+path, nil)
	req.Header.Set("X-API-Key", testAPIKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("admin request %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/websocket/clients")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if status := adminGet(t, env, "", "/websocket/clients", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", status)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	operatorToken(t, env)

	do := func(body string) int {
		req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", testAPIKey)
		resp, err := env.ts.Client().Do(req)
		if err != nil {
			t.Fatalf("login request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := do(`{"email":"ops@example.com","password":"password123"}`); status != http.StatusOK {
		t.Fatalf("expected 200 for valid login, got %d", status)
	}
	if status := do(`{"email":"ops@example.com","password":"wrong"}`); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", status)
	}
}

func TestAdminRegistryViews(t *testing.T) {
	env := newTestEnv(t, nil)
	token := operatorToken(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, conn, "srv1", "general")

	var clients ClientsResponse
	if status := adminGet(t, env, token, "/websocket/clients", &clients); status != http.StatusOK {
		t.Fatalf("clients status: %d", status)
	}
	if clients.Total != 1 || len(clients.Clients) != 1 || clients.Clients[0] != "srv1" {
		t.Fatalf("unexpected clients: %+v", clients)
	}

	var channels ChannelsResponse
	if status := adminGet(t, env, token, "/websocket/channels", &channels); status != http.StatusOK {
		t.Fatalf("channels status: %d", status)
	}
	if len(channels.Channels) != 1 || channels.Channels[0] != "general" {
		t.Fatalf("unexpected channels: %+v", channels)
	}

	var byChannel ChannelClientsResponse
	if status := adminGet(t, env, token, "/websocket/clients/by-channel?channel=general", &byChannel); status != http.StatusOK {
		t.Fatalf("by-channel status: %d", status)
	}
	if byChannel.Total != 1 || byChannel.Clients[0] != "srv1" {
		t.Fatalf("unexpected by-channel: %+v", byChannel)
	}

	if status := adminGet(t, env, token, "/websocket/clients/by-channel", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing channel, got %d", status)
	}
}

func TestAdminBroadcastReachesSubscribersAndHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	token := operatorToken(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env)
	wsAuthSubscribe(t, ctx, conn, "srv1", "general")

	params := url.Values{}
	params.Set("channel", "general")
	params.Set("message", "maintenance at noon")
	params.Set("id", "ops")
	params.Set("sender", "Operator")

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/websocket/broadcast?"+params.Encode(), nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("broadcast request: %v", err)
	}
	defer resp.Body.Close()

	var result BroadcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode broadcast response: %v", err)
	}
	if !result.Success || result.Send != 1 {
		t.Fatalf("unexpected broadcast result: %+v", result)
	}

	event := nextEnvelope(t, ctx, conn)
	if event.Event != proto.EventEvent || event.Message != "maintenance at noon" || event.Id != "ops" || event.Sender != "Operator" {
		t.Fatalf("unexpected broadcast envelope: %+v", event)
	}

	// The history append is asynchronous; poll until the writer catches up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var entries []chanlog.Entry
		if status := adminGet(t, env, token, "/websocket/channel/events?channel=general", &entries); status != http.StatusOK {
			t.Fatalf("history status: %d", status)
		}
		if len(entries) == 1 {
			if entries[0].Message != "maintenance at noon" || entries[0].Sender != "Operator" {
				t.Fatalf("unexpected history entry: %+v", entries[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("history entry never appeared")
		}
		time.Sleep(25 * time.Millisecond)
	}
}
