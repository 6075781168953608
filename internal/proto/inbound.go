package proto

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types.
const (
	TypeChatMessage  = "chat_message"
	TypeTyping       = "typing"
	TypeReadMessages = "read_messages"
)

// Inbound is a frame sent by the client. Fields are pointers so a missing
// field can be told apart from an empty one.
type Inbound struct {
	Type    string  `json:"type"`
	Name    *string `json:"name,omitempty"`
	Message *string `json:"message,omitempty"`
	Typing  *bool   `json:"typing,omitempty"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode frame: %w", err)
	}
	return in, nil
}
