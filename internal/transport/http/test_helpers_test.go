package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/pairchat/internal/auth"
	"github.com/vovakirdan/pairchat/internal/config"
	"github.com/vovakirdan/pairchat/internal/core"
	"github.com/vovakirdan/pairchat/internal/fabric"
	"github.com/vovakirdan/pairchat/internal/presence"
	"github.com/vovakirdan/pairchat/internal/store/sqlite"
)

type testServer struct {
	*httptest.Server
	store  *sqlite.SQLiteStore
	fabric *fabric.Hub
}

// startTestServer runs the full router on an in-memory store and fabric.
func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authService := createTestAuthService(t, st, cfg.JWTSecret)
	gate := auth.NewGate(authService, st)
	fab := fabric.NewHub()

	logger := zerolog.Nop()
	hub := core.NewHub(st, fab, presence.NewMemory(), gate, &logger)
	server := NewServer(hub, authService, gate, st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: st, fabric: fab}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st *sqlite.SQLiteStore, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *stdhttp.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := ts.Client().Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err, "POST %s", path)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// register creates a user and returns its token.
func (ts *testServer) register(t *testing.T, username string) string {
	t.Helper()

	resp := ts.postJSON(t, "/api/register", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode, "register %s", username)
	var out AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

func (ts *testServer) wsURL(path string) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + path
}

// dial opens a socket authenticated with the Authorization header.
func (ts *testServer) dial(ctx context.Context, t *testing.T, path, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, ts.wsURL(path), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": {"Bearer " + token}},
	})
	require.NoError(t, err, "dial %s", path)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

type wsFrame map[string]any

func (f wsFrame) kind() string {
	s, _ := f["type"].(string)
	return s
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	var f wsFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

// mustRead reads frames until one of the given type arrives.
func mustRead(ctx context.Context, t *testing.T, conn *websocket.Conn, kind string) wsFrame {
	t.Helper()

	for {
		f := readFrame(ctx, t, conn)
		if f.kind() == kind {
			return f
		}
	}
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	require.NoError(t, wsjson.Write(ctx, conn, v))
}
