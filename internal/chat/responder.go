package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Turn is one visible message of the authoring conversation.
type Turn struct {
	Role    string
	Content string
}

// Request is the input of a single chat round.
type Request struct {
	Turns              []Turn
	ProjectDescription string
	PreviousHTML       string
}

// Validate rejects empty conversations and roles other than user and assistant.
func (request Request) Validate() error {
	if len(request.Turns) == 0 {
		return fmt.Errorf("%w: messages are required", ErrInvalidRequest)
	}
	for index, turn := range request.Turns {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidRequest, index, turn.Role)
		}
	}
	return nil
}

// Responder turns a conversation into a Reply with a single gateway call.
type Responder struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewResponder builds a Responder.
func NewResponder(gateway Gateway, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{gateway: gateway, logger: logger}
}

// Respond validates the request, calls the gateway once and parses the answer. Gateway errors are returned unchanged.
func (responder *Responder) Respond(ctx context.Context, request Request) (Reply, error) {
	if err := request.Validate(); err != nil {
		return Reply{}, err
	}

	raw, err := responder.gateway.Complete(ctx, BuildMessages(request))
	if err != nil {
		return Reply{}, err
	}

	reply := ParseReply(raw)
	responder.logger.Debug("chat_reply_parsed",
		zap.String("strategy", string(reply.Strategy)),
		zap.Bool("has_html", reply.HTML != nil))
	return reply, nil
}

// BuildMessages orders the system instruction, the optional current HTML and then the turns.
func BuildMessages(request Request) []Message {
	messages := make([]Message, 0, len(request.Turns)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: BuildSystemInstruction(request.ProjectDescription)})
	if strings.TrimSpace(request.PreviousHTML) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: buildPreviousHTMLContext(request.PreviousHTML)})
	}
	for _, turn := range request.Turns {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
