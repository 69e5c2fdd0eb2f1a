package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/publish"
)

type publishRequest struct {
	ProjectID   string `json:"projectId"`
	HTMLContent string `json:"htmlContent"`
	Subdomain   string `json:"subdomain"`
}

type publishResponse struct {
	Success      bool   `json:"success"`
	Subdomain    string `json:"subdomain"`
	PublishedURL string `json:"published_url"`
	Message      string `json:"message"`
}

type PublishHandlers struct {
	publisher *publish.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewPublishHandlers(publisher *publish.Publisher, serviceMetrics *metrics.Metrics, logger *zap.Logger) *PublishHandlers {
	return &PublishHandlers{publisher: publisher, metrics: serviceMetrics, logger: logger}
}

// PublishSite marks a project as published and returns its public address.
func (handlers *PublishHandlers) PublishSite(context *gin.Context) {
	var payload publishRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.ObservePublish(metrics.ResultInvalidRequest)
		context.JSON(http.StatusBadRequest, functionErrorBody(errorValueInvalidJSON, messageInvalidJSON))
		return
	}
	caller, _ := CallerFrom(context)

	result, publishErr := handlers.publisher.Publish(context.Request.Context(), caller, publish.Request{
		ProjectID:   payload.ProjectID,
		HTMLContent: payload.HTMLContent,
		Subdomain:   payload.Subdomain,
	})
	if publishErr != nil {
		status, code, message := classifyPublishError(publishErr)
		handlers.metrics.ObservePublish(code)
		if status == http.StatusInternalServerError {
			handlers.logger.Error("publish_failed", zap.String("project_id", payload.ProjectID), zap.Error(publishErr))
		}
		context.JSON(status, functionErrorBody(code, message))
		return
	}

	handlers.metrics.ObservePublish(metrics.ResultSuccess)
	context.JSON(http.StatusOK, publishResponse{
		Success:      true,
		Subdomain:    result.Subdomain,
		PublishedURL: result.PublishedURL,
		Message:      result.Message,
	})
}

// UnpublishProject takes a project offline from the authenticated project API.
func (handlers *PublishHandlers) UnpublishProject(context *gin.Context) {
	caller, _ := CallerFrom(context)
	unpublished, unpublishErr := handlers.publisher.Unpublish(context.Request.Context(), caller, context.Param(routeParamProjectID))
	if unpublishErr != nil {
		writeProjectError(context, handlers.logger, unpublishErr)
		return
	}
	context.JSON(http.StatusOK, newProjectResponse(unpublished))
}

func classifyPublishError(err error) (int, string, string) {
	switch {
	case errors.Is(err, publish.ErrMissingProjectID), errors.Is(err, publish.ErrMissingHTMLContent):
		return http.StatusBadRequest, errorValueMissingFields, messageMissingFields
	case errors.Is(err, model.ErrInvalidSubdomain):
		return http.StatusBadRequest, errorValueInvalidSubdomain, messageInvalidSubdomain
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusUnauthorized, errorValueUnauthorized, messageUnauthorized
	case errors.Is(err, project.ErrProjectNotFound), errors.Is(err, authz.ErrForbidden):
		return http.StatusNotFound, errorValueNotFound, messageProjectNotFound
	case errors.Is(err, publish.ErrSubdomainUnavailable):
		return http.StatusConflict, errorValueSubdomainUnavailable, messageSubdomainUnavailable
	default:
		return http.StatusInternalServerError, errorValueUpdateFailed, messageUpdateFailed
	}
}
