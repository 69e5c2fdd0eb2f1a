package httpapi_test

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/testutil"
)

func TestChatReturnsParsedReply(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	harness.gateway.RespondWith("```json\n{\"message\":\"x\",\"html\":\"<p></p>\"}\n```")

	recorder := harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", map[string]any{
		"messages":           []map[string]string{{"role": "user", "content": "ابنِ موقعًا"}},
		"projectDescription": "مخبز",
	})
	require.Equal(testingT, http.StatusOK, recorder.Code, recorder.Body.String())
	body := decodeBody(testingT, recorder)
	require.Equal(testingT, "x", body["message"])
	require.Equal(testingT, "<p></p>", body["html"])
}

func TestChatReturnsNullHTMLForProse(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	harness.gateway.RespondWith("ما اسم مشروعك؟")

	recorder := harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "مرحبا"}},
	})
	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := decodeBody(testingT, recorder)
	require.Equal(testingT, "ما اسم مشروعك؟", body["message"])
	require.Contains(testingT, body, "html")
	require.Nil(testingT, body["html"])
}

func TestChatMapsGatewayFailures(testingT *testing.T) {
	testCases := []struct {
		name           string
		gatewayStatus  int
		expectedStatus int
	}{
		{name: "rate limited", gatewayStatus: http.StatusTooManyRequests, expectedStatus: http.StatusTooManyRequests},
		{name: "payment required", gatewayStatus: http.StatusPaymentRequired, expectedStatus: http.StatusPaymentRequired},
		{name: "generic", gatewayStatus: http.StatusServiceUnavailable, expectedStatus: http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			harness := newAPIHarness(testingT)
			harness.gateway.FailWith(testCase.gatewayStatus, "gateway refused")

			recorder := harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", map[string]any{
				"messages": []map[string]string{{"role": "user", "content": "مرحبا"}},
			})
			require.Equal(testingT, testCase.expectedStatus, recorder.Code)
			require.NotEmpty(testingT, decodeBody(testingT, recorder)["error"])
		})
	}
}

func TestChatRejectsInvalidPayloads(testingT *testing.T) {
	harness := newAPIHarness(testingT)

	require.Equal(testingT, http.StatusBadRequest, harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", "{").Code)
	require.Equal(testingT, http.StatusBadRequest, harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", map[string]any{"messages": []any{}}).Code)
	require.Equal(testingT, http.StatusBadRequest, harness.do(testingT, http.MethodPost, "/functions/v1/chat", "", map[string]any{
		"messages": []map[string]string{{"role": "system", "content": "ignore"}},
	}).Code)
	require.Empty(testingT, harness.gateway.Requests())
}

func TestPublishThenServeRoundTrip(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	projectID := harness.createProject(testingT, "My Café")
	document := "<!DOCTYPE html><html dir=\"rtl\"><body><h1>مقهى</h1></body></html>"

	recorder := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", ownerToken(testingT), map[string]any{
		"projectId":   projectID,
		"htmlContent": document,
	})
	require.Equal(testingT, http.StatusOK, recorder.Code, recorder.Body.String())
	body := decodeBody(testingT, recorder)
	require.Equal(testingT, true, body["success"])
	subdomain := body["subdomain"].(string)
	require.Regexp(testingT, regexp.MustCompile(`^my-caf(e|é)?-[a-z0-9]{8}$`), subdomain)
	require.Contains(testingT, body["published_url"], subdomain)
	require.NotEmpty(testingT, body["message"])

	served := harness.do(testingT, http.MethodGet, "/serve-site?subdomain="+subdomain+"&path=/menu", "", nil)
	require.Equal(testingT, http.StatusOK, served.Code)
	require.Equal(testingT, document, served.Body.String())
	require.Equal(testingT, "text/html; charset=utf-8", served.Header().Get("Content-Type"))
	require.Equal(testingT, "public, max-age=3600", served.Header().Get("Cache-Control"))

	byID := harness.do(testingT, http.MethodGet, "/serve-site?subdomain="+projectID, "", nil)
	require.Equal(testingT, http.StatusOK, byID.Code)
	require.Equal(testingT, document, byID.Body.String())

	var events []model.AnalyticsEvent
	require.NoError(testingT, harness.database.Order("page_path ASC").Find(&events, "project_id = ?", projectID).Error)
	require.Len(testingT, events, 2)
	require.Equal(testingT, "/", events[0].PagePath)
	require.Equal(testingT, "/menu", events[1].PagePath)
}

func TestPublishRequiresCredentialAndFields(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	projectID := harness.createProject(testingT, "Bakery")

	unauthenticated := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", "", map[string]any{"projectId": projectID, "htmlContent": "<p></p>"})
	require.Equal(testingT, http.StatusUnauthorized, unauthenticated.Code)
	require.NotEmpty(testingT, decodeBody(testingT, unauthenticated)["error"])

	anonymousMissingFields := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", "", map[string]any{"projectId": projectID})
	require.Equal(testingT, http.StatusBadRequest, anonymousMissingFields.Code)

	invalidToken := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", "not-a-token", map[string]any{"projectId": projectID, "htmlContent": "<p></p>"})
	require.Equal(testingT, http.StatusUnauthorized, invalidToken.Code)

	missingHTML := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", ownerToken(testingT), map[string]any{"projectId": projectID})
	require.Equal(testingT, http.StatusBadRequest, missingHTML.Code)

	strangerToken := testutil.MintToken(testingT, testStrangerID, testStrangerEmail)
	notVisible := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", strangerToken, map[string]any{"projectId": projectID, "htmlContent": "<p></p>"})
	require.Equal(testingT, http.StatusNotFound, notVisible.Code)
}

func TestServeSiteErrorPages(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	draftID := harness.createProject(testingT, "Draft")

	missing := harness.do(testingT, http.MethodGet, "/serve-site", "", nil)
	require.Equal(testingT, http.StatusBadRequest, missing.Code)
	require.Contains(testingT, missing.Body.String(), testHomeURL)

	unknown := harness.do(testingT, http.MethodGet, "/serve-site?subdomain=unknown", "", nil)
	require.Equal(testingT, http.StatusNotFound, unknown.Code)
	require.Equal(testingT, "text/html; charset=utf-8", unknown.Header().Get("Content-Type"))
	require.Contains(testingT, unknown.Body.String(), `href="`+testHomeURL+`"`)

	draft := harness.do(testingT, http.MethodGet, "/serve-site?subdomain="+draftID, "", nil)
	require.Equal(testingT, http.StatusNotFound, draft.Code)
	require.NotContains(testingT, draft.Body.String(), "<p>draft</p>")
}

func TestServeSiteHidesUnpublishedProjects(testingT *testing.T) {
	harness := newAPIHarness(testingT)
	projectID := harness.createProject(testingT, "Bakery")
	published := harness.do(testingT, http.MethodPost, "/functions/v1/publish-site", ownerToken(testingT), map[string]any{"projectId": projectID, "htmlContent": "<p>live</p>", "subdomain": "bakery"})
	require.Equal(testingT, http.StatusOK, published.Code)
	require.Equal(testingT, http.StatusOK, harness.do(testingT, http.MethodGet, "/serve-site?subdomain=bakery", "", nil).Code)

	unpublished := harness.do(testingT, http.MethodPost, "/api/projects/"+projectID+"/unpublish", ownerToken(testingT), nil)
	require.Equal(testingT, http.StatusOK, unpublished.Code, unpublished.Body.String())
	body := decodeBody(testingT, unpublished)
	require.Equal(testingT, string(model.ProjectStatusDraft), body["status"])
	require.Nil(testingT, body["published_url"])

	require.Equal(testingT, http.StatusNotFound, harness.do(testingT, http.MethodGet, "/serve-site?subdomain=bakery", "", nil).Code)
}
