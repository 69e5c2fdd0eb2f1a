package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/publish"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sites"
)

const (
	htmlContentType       = "text/html; charset=utf-8"
	siteCacheControl      = "public, max-age=3600"
	errorPageCacheControl = "no-store"
	queryParamPagePath    = "path"
)

// SiteResolver finds published sites.
type SiteResolver interface {
	Resolve(ctx context.Context, key string) (sites.Site, error)
}

// PageViewRecorder stores analytics events.
type PageViewRecorder interface {
	RecordEvent(ctx context.Context, event model.AnalyticsEvent) error
}

type SiteHandlers struct {
	resolver SiteResolver
	renderer *sites.PageRenderer
	recorder PageViewRecorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewSiteHandlers(resolver SiteResolver, renderer *sites.PageRenderer, recorder PageViewRecorder, serviceMetrics *metrics.Metrics, logger *zap.Logger) *SiteHandlers {
	return &SiteHandlers{
		resolver: resolver,
		renderer: renderer,
		recorder: recorder,
		metrics:  serviceMetrics,
		logger:   logger,
	}
}

// ServeSite returns the stored HTML of a published project, or an Arabic error page.
func (handlers *SiteHandlers) ServeSite(context *gin.Context) {
	key := context.Query(publish.SubdomainQueryParam)
	site, resolveErr := handlers.resolver.Resolve(context.Request.Context(), key)
	if resolveErr != nil {
		kind := sites.PageFailure
		switch {
		case errors.Is(resolveErr, sites.ErrMissingKey):
			kind = sites.PageMissingSubdomain
		case errors.Is(resolveErr, sites.ErrSiteNotFound):
			kind = sites.PageNotFound
		default:
			handlers.logger.Error("serve_site_failed", zap.String("key", key), zap.Error(resolveErr))
		}
		handlers.writeErrorPage(context, kind)
		return
	}

	context.Header("Cache-Control", siteCacheControl)
	context.Data(http.StatusOK, htmlContentType, []byte(site.HTML))
	handlers.metrics.ObserveServe(http.StatusOK)
	handlers.recordPageView(context, site.ProjectID)
}

func (handlers *SiteHandlers) writeErrorPage(context *gin.Context, kind sites.PageKind) {
	status, body := handlers.renderer.Render(kind)
	context.Header("Cache-Control", errorPageCacheControl)
	context.Data(status, htmlContentType, body)
	handlers.metrics.ObserveServe(status)
}

func (handlers *SiteHandlers) recordPageView(context *gin.Context, projectID string) {
	if handlers.recorder == nil {
		return
	}
	event, eventErr := model.NewAnalyticsEvent(model.AnalyticsEventInput{
		ProjectID: projectID,
		PagePath:  context.Query(queryParamPagePath),
		VisitorIP: context.ClientIP(),
		UserAgent: context.Request.UserAgent(),
		Referrer:  context.Request.Referer(),
	})
	if eventErr != nil {
		handlers.logger.Debug("analytics_event_invalid", zap.String("project_id", projectID), zap.Error(eventErr))
		return
	}
	if recordErr := handlers.recorder.RecordEvent(context.Request.Context(), event); recordErr != nil {
		handlers.logger.Warn("analytics_event_record_failed", zap.String("project_id", projectID), zap.Error(recordErr))
	}
}
