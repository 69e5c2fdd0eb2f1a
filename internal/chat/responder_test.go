package chat_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/chat"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/testutil"
)

const testModel = "test/model"

func newResponder(testingT *testing.T, gateway *testutil.FakeGateway) *chat.Responder {
	testingT.Helper()
	client, err := chat.NewGatewayClient(chat.GatewayConfig{BaseURL: gateway.URL(), APIKey: "key", Model: testModel}, zap.NewNop())
	require.NoError(testingT, err)
	return chat.NewResponder(client, zap.NewNop())
}

func TestRespondSendsOrderedConversation(testingT *testing.T) {
	gateway := testutil.NewFakeGateway(testingT, "```json\n{\"message\":\"x\",\"html\":\"<p></p>\"}\n```")
	responder := newResponder(testingT, gateway)

	reply, err := responder.Respond(context.Background(), chat.Request{
		Turns: []chat.Turn{
			{Role: chat.RoleUser, Content: "ابنِ موقعًا لمخبز"},
			{Role: chat.RoleAssistant, Content: "ما اسم المخبز؟"},
			{Role: chat.RoleUser, Content: "مخبز النور"},
		},
		ProjectDescription: "مخبز",
		PreviousHTML:       "<html></html>",
	})
	require.NoError(testingT, err)
	require.Equal(testingT, "x", reply.Message)
	require.NotNil(testingT, reply.HTML)
	require.Equal(testingT, "<p></p>", *reply.HTML)
	require.Equal(testingT, chat.ParseStrategyFenced, reply.Strategy)

	requests := gateway.Requests()
	require.Len(testingT, requests, 1)
	require.Equal(testingT, testModel, requests[0].Model)
	messages := requests[0].Messages
	require.Len(testingT, messages, 5)
	require.Equal(testingT, chat.RoleSystem, messages[0].Role)
	require.Contains(testingT, messages[0].Content, "مخبز")
	require.Equal(testingT, chat.RoleSystem, messages[1].Role)
	require.Contains(testingT, messages[1].Content, "<html></html>")
	require.Equal(testingT, "مخبز النور", messages[4].Content)
}

func TestRespondRejectsInvalidConversations(testingT *testing.T) {
	gateway := testutil.NewFakeGateway(testingT, "{}")
	responder := newResponder(testingT, gateway)

	_, err := responder.Respond(context.Background(), chat.Request{})
	require.ErrorIs(testingT, err, chat.ErrInvalidRequest)

	_, err = responder.Respond(context.Background(), chat.Request{Turns: []chat.Turn{{Role: "system", Content: "x"}}})
	require.ErrorIs(testingT, err, chat.ErrInvalidRequest)
	require.Empty(testingT, gateway.Requests())
}

func TestRespondClassifiesGatewayFailures(testingT *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		expected   error
	}{
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: chat.ErrRateLimited},
		{name: "payment required", statusCode: http.StatusPaymentRequired, expected: chat.ErrPaymentRequired},
		{name: "generic", statusCode: http.StatusBadGateway, expected: chat.ErrUpstream},
	}
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			gateway := testutil.NewFakeGateway(testingT, "")
			gateway.FailWith(testCase.statusCode, "upstream says no")
			responder := newResponder(testingT, gateway)

			_, err := responder.Respond(context.Background(), chat.Request{Turns: []chat.Turn{{Role: chat.RoleUser, Content: "hi"}}})
			require.ErrorIs(testingT, err, testCase.expected)

			var upstreamError *chat.UpstreamError
			require.True(testingT, errors.As(err, &upstreamError))
			require.Equal(testingT, testCase.statusCode, upstreamError.StatusCode)
		})
	}
}

func TestNewGatewayClientRequiresEndpointAndModel(testingT *testing.T) {
	_, err := chat.NewGatewayClient(chat.GatewayConfig{Model: testModel}, nil)
	require.ErrorIs(testingT, err, chat.ErrMissingGatewayURL)

	_, err = chat.NewGatewayClient(chat.GatewayConfig{BaseURL: "http://gateway"}, nil)
	require.ErrorIs(testingT, err, chat.ErrMissingModel)
}
