package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	errorMessageMissingGatewayURL = "chat: missing gateway url"
	errorMessageMissingModel      = "chat: missing model"
)

var (
	ErrMissingGatewayURL = errors.New(errorMessageMissingGatewayURL)
	ErrMissingModel      = errors.New(errorMessageMissingModel)
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Gateway returns the raw text completion for a conversation.
type Gateway interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// GatewayConfig describes an OpenAI compatible chat completions endpoint.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// GatewayClient talks to an OpenAI compatible gateway through go-openai.
type GatewayClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewGatewayClient builds a GatewayClient.
func NewGatewayClient(config GatewayConfig, logger *zap.Logger) (*GatewayClient, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingGatewayURL
	}
	model := strings.TrimSpace(config.Model)
	if model == "" {
		return nil, ErrMissingModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = baseURL
	return &GatewayClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("llm"),
	}, nil
}

// Complete sends one chat completion request and returns the first choice's content.
func (gateway *GatewayClient) Complete(ctx context.Context, messages []Message) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:    gateway.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, message := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{Role: message.Role, Content: message.Content})
	}

	response, err := gateway.client.CreateChatCompletion(ctx, request)
	if err != nil {
		classified := classifyGatewayError(err)
		gateway.logger.Warn("llm_request_failed",
			zap.String("model", gateway.model),
			zap.Int("status", classified.StatusCode),
			zap.Error(err))
		return "", classified
	}
	if len(response.Choices) == 0 {
		return "", &UpstreamError{Kind: ErrUpstream, Message: "no choices in response", Cause: ErrEmptyCompletion}
	}

	gateway.logger.Debug("llm_request_completed",
		zap.String("model", gateway.model),
		zap.Int("prompt_tokens", response.Usage.PromptTokens),
		zap.Int("completion_tokens", response.Usage.CompletionTokens))
	return response.Choices[0].Message.Content, nil
}

func classifyGatewayError(err error) *UpstreamError {
	var apiError *openai.APIError
	if errors.As(err, &apiError) {
		return newUpstreamError(apiError.HTTPStatusCode, apiError.Message, err)
	}
	var requestError *openai.RequestError
	if errors.As(err, &requestError) {
		message := ""
		if requestError.Err != nil {
			message = requestError.Err.Error()
		}
		return newUpstreamError(requestError.HTTPStatusCode, message, err)
	}
	return newUpstreamError(0, fmt.Sprintf("gateway unreachable: %v", err), err)
}
