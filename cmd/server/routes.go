package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/httpapi"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
)

const (
	routeHealth       = "/healthz"
	routeMetrics      = "/metrics"
	routeChat         = "/functions/v1/chat"
	routePublishSite  = "/functions/v1/publish-site"
	routeServeSite    = "/serve-site"
	apiRoutePrefix    = "/api"
	apiRouteProjects  = "/projects"
	apiRouteProject   = "/projects/:id"
	apiRouteUnpublish = "/projects/:id/unpublish"
	apiRouteVersions  = "/projects/:id/versions"
	apiRouteRestore   = "/projects/:id/versions/:number/restore"
	apiRouteMembers   = "/projects/:id/collaborators"
	apiRouteMember    = "/projects/:id/collaborators/:collaboratorId"
	apiRouteAnalytics = "/projects/:id/analytics"
	corsMaxAge        = 12 * time.Hour
)

// routeHandlers carries the handler sets of the surfaces a serve mode registers. Sets that belong to
// surfaces outside the mode stay nil.
type routeHandlers struct {
	chat     *httpapi.ChatHandlers
	publish  *httpapi.PublishHandlers
	projects *httpapi.ProjectHandlers
	sites    *httpapi.SiteHandlers
	health   *httpapi.HealthHandlers
	metrics  *metrics.Metrics
	verifier auth.Verifier
}

func newRouter(mode ServeMode, handlers routeHandlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	router.GET(routeHealth, handlers.health.Health)
	router.GET(routeMetrics, gin.WrapH(handlers.metrics.Handler()))

	if mode.ServesChat() {
		registerChatRoutes(router, handlers)
	}
	if mode.ServesPublish() {
		registerPublishRoutes(router, handlers, logger)
	}
	if mode.ServesSites() {
		registerSiteRoutes(router, handlers)
	}
	return router
}

func newWildcardCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{corsOriginWildcard},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	})
}

// Preflight requests never match a POST route, so each CORS path gets an explicit OPTIONS route.
func registerPreflightRoutes(router gin.IRoutes, corsMiddleware gin.HandlerFunc, paths ...string) {
	for _, path := range paths {
		router.OPTIONS(path, corsMiddleware, func(context *gin.Context) {
			context.Status(http.StatusNoContent)
		})
	}
}

func registerChatRoutes(router *gin.Engine, handlers routeHandlers) {
	functionsCORS := newWildcardCORS()
	registerPreflightRoutes(router, functionsCORS, routeChat)
	router.POST(routeChat, functionsCORS, handlers.chat.Chat)
}

func registerPublishRoutes(router *gin.Engine, handlers routeHandlers, logger *zap.Logger) {
	functionsCORS := newWildcardCORS()
	registerPreflightRoutes(router, functionsCORS, routePublishSite)
	router.POST(routePublishSite, functionsCORS, httpapi.IdentifyFunctionCaller(handlers.verifier, logger), handlers.publish.PublishSite)

	apiCORS := newWildcardCORS()
	apiGroup := router.Group(apiRoutePrefix)
	registerPreflightRoutes(apiGroup, apiCORS,
		apiRouteProjects, apiRouteProject, apiRouteUnpublish, apiRouteVersions,
		apiRouteRestore, apiRouteMembers, apiRouteMember, apiRouteAnalytics,
	)
	apiGroup.Use(apiCORS)
	apiGroup.Use(httpapi.RequireAPICaller(handlers.verifier, logger))
	apiGroup.GET(apiRouteProjects, handlers.projects.ListProjects)
	apiGroup.POST(apiRouteProjects, handlers.projects.CreateProject)
	apiGroup.GET(apiRouteProject, handlers.projects.GetProject)
	apiGroup.PATCH(apiRouteProject, handlers.projects.UpdateProject)
	apiGroup.DELETE(apiRouteProject, handlers.projects.DeleteProject)
	apiGroup.POST(apiRouteUnpublish, handlers.publish.UnpublishProject)
	apiGroup.GET(apiRouteVersions, handlers.projects.ListVersions)
	apiGroup.POST(apiRouteVersions, handlers.projects.CreateVersion)
	apiGroup.POST(apiRouteRestore, handlers.projects.RestoreVersion)
	apiGroup.GET(apiRouteMembers, handlers.projects.ListCollaborators)
	apiGroup.POST(apiRouteMembers, handlers.projects.InviteCollaborator)
	apiGroup.DELETE(apiRouteMember, handlers.projects.RemoveCollaborator)
	apiGroup.GET(apiRouteAnalytics, handlers.projects.Analytics)
}

func registerSiteRoutes(router *gin.Engine, handlers routeHandlers) {
	router.GET(routeServeSite, handlers.sites.ServeSite)
}
