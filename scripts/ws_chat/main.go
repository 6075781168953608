package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/pairchat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "alice", "username")
	password := flag.String("password", "password123", "password")
	peer := flag.String("peer", "bob", "user to chat with")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *server, *user, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws/chat/" + *user + "/" + *peer + "/"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s\n", wsURL, *user)
	fmt.Println("Type messages and press Enter to send. /read marks messages read. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *user)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, server, user, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Token, nil
}

// frame is the union of every outbound field the client prints.
type frame struct {
	Type     string          `json:"type"`
	User     string          `json:"user"`
	Users    []string        `json:"users"`
	Typing   bool            `json:"typing"`
	Message  *proto.Message  `json:"message"`
	Messages []proto.Message `json:"messages"`
	HasMore  bool            `json:"has_more"`
	Error    string          `json:"error"`
	Detail   string          `json:"detail"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch {
		case f.Error != "":
			fmt.Printf("error: %s (%s)\n", f.Error, f.Detail)
		case f.Type == proto.TypeChatMessageEcho && f.Message != nil:
			fmt.Printf("%s: %s\n", f.Message.FromUser.Username, f.Message.Content)
		case f.Type == proto.TypeUserJoin:
			fmt.Printf("* %s joined\n", f.User)
		case f.Type == proto.TypeUserLeave:
			fmt.Printf("* %s left\n", f.User)
		case f.Type == proto.TypeTyping:
			if f.Typing {
				fmt.Printf("* %s is typing\n", f.User)
			}
		case f.Type == proto.TypeOnlineUserList:
			fmt.Printf("* online: %s\n", strings.Join(f.Users, ", "))
		case f.Type == proto.TypeLastMessages:
			fmt.Printf("* %d recent messages (more: %v)\n", len(f.Messages), f.HasMore)
		default:
			fmt.Printf("* %s\n", f.Type)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			out := map[string]any{"type": proto.TypeChatMessage, "name": user, "message": text}
			if text == "/read" {
				out = map[string]any{"type": proto.TypeReadMessages}
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
