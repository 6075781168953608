package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/presence"
	"github.com/vovakirdan/pairchat/internal/store"
	"github.com/vovakirdan/pairchat/internal/store/sqlite"
)

type tokenIdentity map[string]*store.User

func (t tokenIdentity) Resolve(_ context.Context, token string) (*store.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

type testEnv struct {
	hub      *Hub
	store    *sqlite.SQLiteStore
	fabric   *fabric.Hub
	presence *presence.Memory
	users    map[string]*store.User
}

func newTestEnv(t *testing.T, usernames ...string) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		store:    st,
		fabric:   fabric.NewHub(),
		presence: presence.NewMemory(),
		users:    make(map[string]*store.User),
	}
	identity := tokenIdentity{}
	for _, name := range usernames {
		u, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash")
		require.NoError(t, err)
		env.users[name] = u
		identity["token-"+name] = u
	}

	logger := zerolog.Nop()
	env.hub = NewHub(st, env.fabric, env.presence, identity, &logger)
	return env
}

func (e *testEnv) newClient(username string) *Client {
	return NewClient(uuid.NewString(), e.users[username], 64)
}

// connectChat opens a chat session and fails the test on error.
func (e *testEnv) connectChat(t *testing.T, username, slug1, slug2 string) (*Client, *ChatSession) {
	t.Helper()

	client := e.newClient(username)
	session := e.hub.NewChatSession(client, slug1, slug2)
	require.NoError(t, session.Connect(context.Background()))
	t.Cleanup(func() { session.Disconnect(context.Background()) })
	return client, session
}

func (e *testEnv) connectNotifications(t *testing.T, username string) (*Client, *NotificationSession) {
	t.Helper()

	client := e.newClient(username)
	session := e.hub.NewNotificationSession(client)
	require.NoError(t, session.Connect(context.Background()))
	t.Cleanup(func() { session.Disconnect(context.Background()) })
	return client, session
}

type frame map[string]any

func (f frame) kind() string {
	s, _ := f["type"].(string)
	return s
}

// mustFrame waits for the next frame of the given type, skipping others.
func mustFrame(t *testing.T, c *Client, kind string) frame {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.Outbound():
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			if f.kind() == kind {
				return f
			}
		case <-deadline:
			t.Fatalf("expected frame %q not received", kind)
			return nil
		}
	}
}

// nextFrame returns the next queued frame.
func nextFrame(t *testing.T, c *Client) frame {
	t.Helper()

	select {
	case data := <-c.Outbound():
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

// drain discards every queued frame.
func drain(c *Client) {
	for {
		select {
		case <-c.Outbound():
		default:
			return
		}
	}
}

// assertQuiet fails if a frame is queued.
func assertQuiet(t *testing.T, c *Client) {
	t.Helper()

	select {
	case data := <-c.Outbound():
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func ptr[T any](v T) *T {
	return &v
}
