package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidation(t *testing.T) {
	ts := startTestServer(t)
	ts.register(t, "alice")

	tests := []struct {
		name string
		body RegisterRequest
		want int
	}{
		{"duplicate username", RegisterRequest{Username: "alice", Email: "x@example.com", Password: "password123"}, stdhttp.StatusConflict},
		{"duplicate email", RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "password123"}, stdhttp.StatusConflict},
		{"bad email", RegisterRequest{Username: "carol", Email: "nope", Password: "password123"}, stdhttp.StatusBadRequest},
		{"separator in handle", RegisterRequest{Username: "carol__x", Email: "c@example.com", Password: "password123"}, stdhttp.StatusBadRequest},
		{"short password", RegisterRequest{Username: "carol", Email: "c@example.com", Password: "123"}, stdhttp.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.postJSON(t, "/api/register", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	ts := startTestServer(t)
	ts.register(t, "alice")

	resp := ts.postJSON(t, "/api/login", LoginRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	resp = ts.postJSON(t, "/api/login", LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := startTestServer(t)

	for _, path := range []string{"/api/users/me", "/api/conversations"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err, "GET %s", path)
		resp.Body.Close()
		assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode, "GET %s", path)
	}
}

func TestUserLookup(t *testing.T) {
	ts := startTestServer(t)
	token := ts.register(t, "alice")
	ts.register(t, "bob")

	get := func(path string) (int, UserResponse) {
		req, err := stdhttp.NewRequest(stdhttp.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err, "GET %s", path)
		defer resp.Body.Close()
		var out UserResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, me := get("/api/users/me")
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice@example.com", me.Email)

	status, bob := get("/api/users/bob")
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "bob", bob.Username)
	assert.Empty(t, bob.Email, "email leaks on another user's profile")

	status, _ = get("/api/users/ghost")
	assert.Equal(t, stdhttp.StatusNotFound, status)

	ctx := context.Background()
	stored, err := ts.store.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, ts.store.SetUserSuspended(ctx, stored.ID, true))

	status, _ = get("/api/users/bob")
	assert.Equal(t, stdhttp.StatusNotFound, status, "suspended user")
}

func TestConversationListing(t *testing.T) {
	ts := startTestServer(t)
	aliceToken := ts.register(t, "alice")
	bobToken := ts.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := ts.dial(ctx, t, "/ws/chat/alice/bob/", aliceToken)
	mustRead(ctx, t, alice, "last_50_messages")
	writeFrame(ctx, t, alice, map[string]any{"type": "chat_message", "name": "alice", "message": "first"})
	mustRead(ctx, t, alice, "last_50_messages")

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, ts.URL+"/api/conversations", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var convs []ConversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
	require.Len(t, convs, 1)

	got := convs[0]
	assert.Equal(t, "alice__bob", got.Name)
	assert.Equal(t, "alice", got.OtherUser.Username)
	assert.NotEmpty(t, got.ConvID)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "first", got.LastMessage.Content)
	assert.Equal(t, "bob", got.LastMessage.ToUser.Username)
}
