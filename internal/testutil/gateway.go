package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const chatCompletionsPath = "/chat/completions"

// GatewayRequest is the subset of a chat completion request the fake gateway records.
type GatewayRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// FakeGateway is an OpenAI compatible endpoint answering /chat/completions with a scripted reply.
type FakeGateway struct {
	Server *httptest.Server

	mutex      sync.Mutex
	statusCode int
	content    string
	errorBody  string
	requests   []GatewayRequest
}

// NewFakeGateway starts a gateway that answers with content until told otherwise.
func NewFakeGateway(testingT *testing.T, content string) *FakeGateway {
	testingT.Helper()
	gateway := &FakeGateway{statusCode: http.StatusOK, content: content}
	gateway.Server = httptest.NewServer(http.HandlerFunc(gateway.serve))
	testingT.Cleanup(gateway.Server.Close)
	return gateway
}

// URL returns the base URL to configure as the gateway endpoint.
func (gateway *FakeGateway) URL() string {
	return gateway.Server.URL
}

// RespondWith replaces the scripted completion.
func (gateway *FakeGateway) RespondWith(content string) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.statusCode = http.StatusOK
	gateway.content = content
}

// FailWith makes the gateway answer with an OpenAI style error payload.
func (gateway *FakeGateway) FailWith(statusCode int, message string) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.statusCode = statusCode
	gateway.errorBody = message
}

// Requests returns the requests received so far.
func (gateway *FakeGateway) Requests() []GatewayRequest {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]GatewayRequest(nil), gateway.requests...)
}

func (gateway *FakeGateway) serve(responseWriter http.ResponseWriter, request *http.Request) {
	if request.URL.Path != chatCompletionsPath {
		http.NotFound(responseWriter, request)
		return
	}
	var decoded GatewayRequest
	_ = json.NewDecoder(request.Body).Decode(&decoded)

	gateway.mutex.Lock()
	gateway.requests = append(gateway.requests, decoded)
	statusCode := gateway.statusCode
	content := gateway.content
	errorBody := gateway.errorBody
	gateway.mutex.Unlock()

	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(statusCode)
	if statusCode != http.StatusOK {
		_ = json.NewEncoder(responseWriter).Encode(map[string]any{
			"error": map[string]any{"message": errorBody, "type": "gateway_error"},
		})
		return
	}
	_ = json.NewEncoder(responseWriter).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   decoded.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}
