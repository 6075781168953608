package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/pairchat/internal/proto"
)

// ws_smoke logs in, opens a chat with peer, sends one message and waits for
// its echo. It exits non-zero if anything along the way fails.
func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "alice", "username")
	password := flag.String("password", "password123", "password")
	peer := flag.String("peer", "bob", "user to chat with")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"username": *user, "password": *password})
	resp, err := http.Post(*server+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	var auth struct {
		Token string `json:"token"`
	}
	err = json.NewDecoder(resp.Body).Decode(&auth)
	resp.Body.Close()
	if err != nil || auth.Token == "" {
		log.Fatalf("login: status %d: %v", resp.StatusCode, err)
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws/chat/" + *user + "/" + *peer + "/"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{"bearer", auth.Token},
	})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, conn, map[string]any{
		"type":    proto.TypeChatMessage,
		"name":    *user,
		"message": *text,
	}); err != nil {
		log.Fatalf("send: %v", err)
	}

	for {
		var f struct {
			Type    string        `json:"type"`
			Error   string        `json:"error"`
			Detail  string        `json:"detail"`
			Message proto.Message `json:"message"`
		}
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			log.Fatalf("read: %v", err)
		}
		if f.Error != "" {
			log.Fatalf("server error: %s (%s)", f.Error, f.Detail)
		}
		if f.Type == proto.TypeChatMessageEcho && f.Message.Content == *text {
			fmt.Printf("ok: message %s echoed\n", f.Message.MessageID)
			return
		}
	}
}
