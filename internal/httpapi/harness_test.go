package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/chat"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/httpapi"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/publish"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sites"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/testutil"
)

const (
	testPublicBaseURL = "https://sites.example.com"
	testHomeURL       = "https://builder.example.com/"
	testOwnerID       = "owner-1"
	testOwnerEmail    = "owner@example.com"
	testViewerID      = "viewer-1"
	testViewerEmail   = "viewer@example.com"
	testStrangerID    = "stranger-1"
	testStrangerEmail = "stranger@example.com"
)

type apiHarness struct {
	router   *gin.Engine
	database *gorm.DB
	service  *project.Service
	gateway  *testutil.FakeGateway
	metrics  *metrics.Metrics
}

func newAPIHarness(testingT *testing.T) apiHarness {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	database := testutil.OpenMigratedDatabase(testingT)
	enforcer, err := authz.NewEnforcer()
	require.NoError(testingT, err)
	logger := zap.NewNop()
	service := project.NewService(database, enforcer, logger)
	publisher, err := publish.NewPublisher(service, nil, logger, publish.Config{PublicBaseURL: testPublicBaseURL})
	require.NoError(testingT, err)
	renderer, err := sites.NewPageRenderer(testHomeURL)
	require.NoError(testingT, err)
	verifier, err := auth.NewTokenVerifier(context.Background(), auth.Config{JWTSecret: testutil.TestJWTSecret})
	require.NoError(testingT, err)

	gateway := testutil.NewFakeGateway(testingT, `{"message":"تم","html":"<p>generated</p>"}`)
	gatewayClient, err := chat.NewGatewayClient(chat.GatewayConfig{BaseURL: gateway.URL(), Model: "test/model"}, logger)
	require.NoError(testingT, err)

	serviceMetrics := metrics.New()
	chatHandlers := httpapi.NewChatHandlers(chat.NewResponder(gatewayClient, logger), serviceMetrics, logger)
	publishHandlers := httpapi.NewPublishHandlers(publisher, serviceMetrics, logger)
	siteHandlers := httpapi.NewSiteHandlers(sites.NewServer(service.Repository(), nil, logger), renderer, service.Repository(), serviceMetrics, logger)
	projectHandlers := httpapi.NewProjectHandlers(service, logger)

	router := gin.New()
	router.POST("/functions/v1/chat", chatHandlers.Chat)
	router.POST("/functions/v1/publish-site", httpapi.IdentifyFunctionCaller(verifier, logger), publishHandlers.PublishSite)
	router.GET("/serve-site", siteHandlers.ServeSite)

	apiGroup := router.Group("/api")
	apiGroup.Use(httpapi.RequireAPICaller(verifier, logger))
	apiGroup.GET("/projects", projectHandlers.ListProjects)
	apiGroup.POST("/projects", projectHandlers.CreateProject)
	apiGroup.GET("/projects/:id", projectHandlers.GetProject)
	apiGroup.PATCH("/projects/:id", projectHandlers.UpdateProject)
	apiGroup.DELETE("/projects/:id", projectHandlers.DeleteProject)
	apiGroup.POST("/projects/:id/unpublish", publishHandlers.UnpublishProject)
	apiGroup.GET("/projects/:id/versions", projectHandlers.ListVersions)
	apiGroup.POST("/projects/:id/versions", projectHandlers.CreateVersion)
	apiGroup.POST("/projects/:id/versions/:number/restore", projectHandlers.RestoreVersion)
	apiGroup.GET("/projects/:id/collaborators", projectHandlers.ListCollaborators)
	apiGroup.POST("/projects/:id/collaborators", projectHandlers.InviteCollaborator)
	apiGroup.DELETE("/projects/:id/collaborators/:collaboratorId", projectHandlers.RemoveCollaborator)
	apiGroup.GET("/projects/:id/analytics", projectHandlers.Analytics)

	return apiHarness{router: router, database: database, service: service, gateway: gateway, metrics: serviceMetrics}
}

func (harness apiHarness) do(testingT *testing.T, method string, target string, token string, body any) *httptest.ResponseRecorder {
	testingT.Helper()
	var payload []byte
	switch typed := body.(type) {
	case nil:
	case string:
		payload = []byte(typed)
	default:
		encoded, err := json.Marshal(typed)
		require.NoError(testingT, err)
		payload = encoded
	}
	request := httptest.NewRequest(method, target, bytes.NewReader(payload))
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", testutil.BearerHeader(token))
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func ownerToken(testingT *testing.T) string {
	return testutil.MintToken(testingT, testOwnerID, testOwnerEmail)
}

func decodeBody(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()
	var decoded map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &decoded), recorder.Body.String())
	return decoded
}

func (harness apiHarness) createProject(testingT *testing.T, name string) string {
	testingT.Helper()
	recorder := harness.do(testingT, http.MethodPost, "/api/projects", ownerToken(testingT), map[string]any{"name": name, "html_content": "<p>draft</p>"})
	require.Equal(testingT, http.StatusCreated, recorder.Code, recorder.Body.String())
	return decodeBody(testingT, recorder)["id"].(string)
}
