package http

import (
	"github.com/vovakirdan/pairchat/internal/core"
	"github.com/vovakirdan/pairchat/internal/proto"
)

func inboundToCommand(in proto.Inbound) core.Command {
	cmd := core.Command{
		Type:    in.Type,
		Name:    in.Name,
		Message: in.Message,
		Typing:  in.Typing,
	}
	switch in.Type {
	case proto.TypeChatMessage:
		cmd.Kind = core.CommandChatMessage
	case proto.TypeTyping:
		cmd.Kind = core.CommandTyping
	case proto.TypeReadMessages:
		cmd.Kind = core.CommandReadMessages
	default:
		cmd.Kind = core.CommandUnknown
	}
	return cmd
}

func rateLimitedFrame() []byte {
	data, _ := proto.Encode(proto.Error{
		Error:  proto.ErrorTooManyRequests,
		Detail: "Frame rate limit exceeded, slow down.",
	})
	return data
}
