package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/chat"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
)

type chatTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages           []chatTurnRequest `json:"messages"`
	ProjectDescription string            `json:"projectDescription"`
	PreviousHTML       string            `json:"previousHtml"`
}

type chatResponse struct {
	Message string  `json:"message"`
	HTML    *string `json:"html"`
}

// ChatResponder answers one chat round.
type ChatResponder interface {
	Respond(ctx context.Context, request chat.Request) (chat.Reply, error)
}

type ChatHandlers struct {
	responder ChatResponder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewChatHandlers(responder ChatResponder, serviceMetrics *metrics.Metrics, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{responder: responder, metrics: serviceMetrics, logger: logger}
}

// Chat forwards the conversation to the language model and returns the parsed reply.
func (handlers *ChatHandlers) Chat(context *gin.Context) {
	var payload chatRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.ObserveChat(metrics.ResultInvalidRequest, 0)
		context.JSON(http.StatusBadRequest, functionErrorBody(errorValueInvalidJSON, messageInvalidJSON))
		return
	}

	request := chat.Request{
		Turns:              make([]chat.Turn, 0, len(payload.Messages)),
		ProjectDescription: payload.ProjectDescription,
		PreviousHTML:       payload.PreviousHTML,
	}
	for _, message := range payload.Messages {
		request.Turns = append(request.Turns, chat.Turn{Role: message.Role, Content: message.Content})
	}
	if validationErr := request.Validate(); validationErr != nil {
		handlers.metrics.ObserveChat(metrics.ResultInvalidRequest, 0)
		context.JSON(http.StatusBadRequest, functionErrorBody(errorValueInvalidRequest, messageInvalidMessages))
		return
	}

	start := time.Now()
	reply, respondErr := handlers.responder.Respond(context.Request.Context(), request)
	elapsed := time.Since(start)
	if respondErr != nil {
		failure := classifyChatError(respondErr)
		handlers.metrics.ObserveChat(failure.result, elapsed)
		handlers.logger.Warn("chat_failed", zap.Error(respondErr), zap.Int("status", failure.status), zap.String("code", failure.code))
		context.JSON(failure.status, functionErrorBody(failure.code, failure.message))
		return
	}

	handlers.metrics.ObserveChat(metrics.ResultSuccess, elapsed)
	context.JSON(http.StatusOK, chatResponse{Message: reply.Message, HTML: reply.HTML})
}

// chatFailure maps a responder error to its HTTP status, metrics label, error code and user message.
type chatFailure struct {
	status  int
	result  string
	code    string
	message string
}

func classifyChatError(err error) chatFailure {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		return chatFailure{http.StatusTooManyRequests, metrics.ResultRateLimited, errorValueRateLimited, messageRateLimited}
	case errors.Is(err, chat.ErrPaymentRequired):
		return chatFailure{http.StatusPaymentRequired, metrics.ResultPaymentRequired, errorValuePaymentRequired, messagePaymentRequired}
	case errors.Is(err, chat.ErrInvalidRequest):
		return chatFailure{http.StatusBadRequest, metrics.ResultInvalidRequest, errorValueInvalidRequest, messageInvalidMessages}
	default:
		return chatFailure{http.StatusInternalServerError, metrics.ResultError, errorValueUpstreamFailed, upstreamMessage(err)}
	}
}

func upstreamMessage(err error) string {
	var upstreamError *chat.UpstreamError
	if errors.As(err, &upstreamError) && upstreamError.Message != "" {
		return messageUpstreamFailed + " " + upstreamError.Message
	}
	return messageUpstreamFailed
}
