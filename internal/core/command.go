package core

import "github.com/vovakirdan/pairchat/internal/proto"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandUnknown is any frame type the server does not handle. It is
	// ignored.
	CommandUnknown CommandKind = iota
	// CommandChatMessage persists a message and fans it out.
	CommandChatMessage
	// CommandTyping broadcasts a typing indicator.
	CommandTyping
	// CommandReadMessages marks the conversation read for the caller.
	CommandReadMessages
)

func (k CommandKind) String() string {
	switch k {
	case CommandChatMessage:
		return proto.TypeChatMessage
	case CommandTyping:
		return proto.TypeTyping
	case CommandReadMessages:
		return proto.TypeReadMessages
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	// Type is the raw frame type, kept for logging unknown frames.
	Type    string
	Name    *string
	Message *string
	Typing  *bool
}
