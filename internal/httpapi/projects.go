package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
)

const (
	routeParamProjectID      = "id"
	routeParamVersionNumber  = "number"
	routeParamCollaboratorID = "collaboratorId"
	queryParamDays           = "days"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLContent string `json:"html_content"`
}

type updateProjectRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	HTMLContent    *string `json:"html_content"`
	SEOTitle       *string `json:"seo_title"`
	SEODescription *string `json:"seo_description"`
}

type createVersionRequest struct {
	Description string `json:"description"`
}

type inviteCollaboratorRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type projectResponse struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	HTMLContent    *string `json:"html_content"`
	Status         string  `json:"status"`
	Subdomain      *string `json:"subdomain"`
	PublishedURL   *string `json:"published_url"`
	SEOTitle       string  `json:"seo_title"`
	SEODescription string  `json:"seo_description"`
	Role           string  `json:"role,omitempty"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

type listProjectsResponse struct {
	Projects []projectResponse `json:"projects"`
}

type versionResponse struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	VersionNumber int    `json:"version_number"`
	HTMLContent   string `json:"html_content"`
	Description   string `json:"description"`
	CreatedAt     int64  `json:"created_at"`
}

type listVersionsResponse struct {
	ProjectID string            `json:"project_id"`
	Versions  []versionResponse `json:"versions"`
}

type collaboratorResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Email      string `json:"email"`
	Permission string `json:"permission"`
	InvitedBy  string `json:"invited_by"`
	CreatedAt  int64  `json:"created_at"`
}

type listCollaboratorsResponse struct {
	ProjectID     string                 `json:"project_id"`
	Collaborators []collaboratorResponse `json:"collaborators"`
}

type ProjectHandlers struct {
	service *project.Service
	logger  *zap.Logger
	now     func() time.Time
}

func NewProjectHandlers(service *project.Service, logger *zap.Logger) *ProjectHandlers {
	return &ProjectHandlers{service: service, logger: logger, now: time.Now}
}

func (handlers *ProjectHandlers) ListProjects(context *gin.Context) {
	caller, _ := CallerFrom(context)
	projects, listErr := handlers.service.ListProjects(context.Request.Context(), caller)
	if listErr != nil {
		writeProjectError(context, handlers.logger, listErr)
		return
	}
	response := listProjectsResponse{Projects: make([]projectResponse, 0, len(projects))}
	for _, record := range projects {
		response.Projects = append(response.Projects, newProjectResponse(record))
	}
	context.JSON(http.StatusOK, response)
}

func (handlers *ProjectHandlers) CreateProject(context *gin.Context) {
	var payload createProjectRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueInvalidJSON, messageInvalidJSON))
		return
	}
	caller, _ := CallerFrom(context)
	created, createErr := handlers.service.CreateProject(context.Request.Context(), caller, model.ProjectInput{
		Name:        payload.Name,
		Description: payload.Description,
		HTMLContent: payload.HTMLContent,
	})
	if createErr != nil {
		writeProjectError(context, handlers.logger, createErr)
		return
	}
	context.JSON(http.StatusCreated, newProjectResponse(created))
}

func (handlers *ProjectHandlers) GetProject(context *gin.Context) {
	caller, _ := CallerFrom(context)
	access, getErr := handlers.service.GetProject(context.Request.Context(), caller, context.Param(routeParamProjectID))
	if getErr != nil {
		writeProjectError(context, handlers.logger, getErr)
		return
	}
	response := newProjectResponse(access.Project)
	response.Role = string(access.Role)
	context.JSON(http.StatusOK, response)
}

func (handlers *ProjectHandlers) UpdateProject(context *gin.Context) {
	var payload updateProjectRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueInvalidJSON, messageInvalidJSON))
		return
	}
	caller, _ := CallerFrom(context)
	updated, updateErr := handlers.service.UpdateProject(context.Request.Context(), caller, context.Param(routeParamProjectID), model.ProjectUpdate{
		Name:           payload.Name,
		Description:    payload.Description,
		HTMLContent:    payload.HTMLContent,
		SEOTitle:       payload.SEOTitle,
		SEODescription: payload.SEODescription,
	})
	if updateErr != nil {
		writeProjectError(context, handlers.logger, updateErr)
		return
	}
	context.JSON(http.StatusOK, newProjectResponse(updated))
}

func (handlers *ProjectHandlers) DeleteProject(context *gin.Context) {
	caller, _ := CallerFrom(context)
	deleted, deleteErr := handlers.service.DeleteProject(context.Request.Context(), caller, context.Param(routeParamProjectID))
	if deleteErr != nil {
		writeProjectError(context, handlers.logger, deleteErr)
		return
	}
	context.JSON(http.StatusOK, gin.H{"deleted": true, "id": deleted.ID})
}

func (handlers *ProjectHandlers) ListVersions(context *gin.Context) {
	caller, _ := CallerFrom(context)
	projectID := context.Param(routeParamProjectID)
	versions, listErr := handlers.service.ListVersions(context.Request.Context(), caller, projectID)
	if listErr != nil {
		writeProjectError(context, handlers.logger, listErr)
		return
	}
	response := listVersionsResponse{ProjectID: projectID, Versions: make([]versionResponse, 0, len(versions))}
	for _, version := range versions {
		response.Versions = append(response.Versions, newVersionResponse(version))
	}
	context.JSON(http.StatusOK, response)
}

func (handlers *ProjectHandlers) CreateVersion(context *gin.Context) {
	var payload createVersionRequest
	if context.Request.ContentLength != 0 {
		if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
			context.JSON(http.StatusBadRequest, apiErrorBody(errorValueInvalidJSON, messageInvalidJSON))
			return
		}
	}
	caller, _ := CallerFrom(context)
	version, saveErr := handlers.service.SaveVersion(context.Request.Context(), caller, context.Param(routeParamProjectID), payload.Description)
	if saveErr != nil {
		writeProjectError(context, handlers.logger, saveErr)
		return
	}
	context.JSON(http.StatusCreated, newVersionResponse(version))
}

func (handlers *ProjectHandlers) RestoreVersion(context *gin.Context) {
	versionNumber, parseErr := strconv.Atoi(context.Param(routeParamVersionNumber))
	if parseErr != nil || versionNumber < 1 {
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueValidation, messageValidationFailed))
		return
	}
	caller, _ := CallerFrom(context)
	restored, restoreErr := handlers.service.RestoreVersion(context.Request.Context(), caller, context.Param(routeParamProjectID), versionNumber)
	if restoreErr != nil {
		writeProjectError(context, handlers.logger, restoreErr)
		return
	}
	context.JSON(http.StatusOK, newProjectResponse(restored))
}

func (handlers *ProjectHandlers) ListCollaborators(context *gin.Context) {
	caller, _ := CallerFrom(context)
	projectID := context.Param(routeParamProjectID)
	collaborators, listErr := handlers.service.ListCollaborators(context.Request.Context(), caller, projectID)
	if listErr != nil {
		writeProjectError(context, handlers.logger, listErr)
		return
	}
	response := listCollaboratorsResponse{ProjectID: projectID, Collaborators: make([]collaboratorResponse, 0, len(collaborators))}
	for _, collaborator := range collaborators {
		response.Collaborators = append(response.Collaborators, newCollaboratorResponse(collaborator))
	}
	context.JSON(http.StatusOK, response)
}

func (handlers *ProjectHandlers) InviteCollaborator(context *gin.Context) {
	var payload inviteCollaboratorRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueInvalidJSON, messageInvalidJSON))
		return
	}
	caller, _ := CallerFrom(context)
	collaborator, inviteErr := handlers.service.InviteCollaborator(context.Request.Context(), caller, context.Param(routeParamProjectID), payload.Email, payload.Permission)
	if inviteErr != nil {
		writeProjectError(context, handlers.logger, inviteErr)
		return
	}
	context.JSON(http.StatusCreated, newCollaboratorResponse(collaborator))
}

func (handlers *ProjectHandlers) RemoveCollaborator(context *gin.Context) {
	caller, _ := CallerFrom(context)
	removeErr := handlers.service.RemoveCollaborator(context.Request.Context(), caller, context.Param(routeParamProjectID), context.Param(routeParamCollaboratorID))
	if removeErr != nil {
		writeProjectError(context, handlers.logger, removeErr)
		return
	}
	context.Status(http.StatusNoContent)
}

func (handlers *ProjectHandlers) Analytics(context *gin.Context) {
	days := 0
	if rawDays := context.Query(queryParamDays); rawDays != "" {
		parsedDays, parseErr := strconv.Atoi(rawDays)
		if parseErr != nil {
			context.JSON(http.StatusBadRequest, apiErrorBody(errorValueValidation, messageValidationFailed))
			return
		}
		days = parsedDays
	}
	caller, _ := CallerFrom(context)
	summary, summaryErr := handlers.service.AnalyticsSummary(context.Request.Context(), caller, context.Param(routeParamProjectID), days, handlers.now())
	if summaryErr != nil {
		writeProjectError(context, handlers.logger, summaryErr)
		return
	}
	context.JSON(http.StatusOK, summary)
}

func writeProjectError(context *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		context.JSON(http.StatusNotFound, apiErrorBody(errorValueNotFound, messageProjectNotFound))
	case errors.Is(err, authz.ErrForbidden):
		context.JSON(http.StatusForbidden, apiErrorBody(errorValueForbidden, messageForbidden))
	case errors.Is(err, project.ErrVersionNotFound):
		context.JSON(http.StatusNotFound, apiErrorBody(errorValueNotFound, messageVersionNotFound))
	case errors.Is(err, project.ErrCollaboratorNotFound):
		context.JSON(http.StatusNotFound, apiErrorBody(errorValueNotFound, messageCollaboratorNotFound))
	case errors.Is(err, project.ErrDuplicateCollaborator):
		context.JSON(http.StatusConflict, apiErrorBody(errorValueCollaboratorExists, messageCollaboratorExists))
	case errors.Is(err, project.ErrSubdomainTaken):
		context.JSON(http.StatusConflict, apiErrorBody(errorValueSubdomainUnavailable, messageSubdomainUnavailable))
	case errors.Is(err, project.ErrNothingToSnapshot):
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueNothingToSnapshot, messageNothingToSnapshot))
	case project.IsValidationError(err):
		context.JSON(http.StatusBadRequest, apiErrorBody(errorValueValidation, messageValidationFailed))
	default:
		logger.Error("project_request_failed", zap.String("path", context.FullPath()), zap.Error(err))
		context.JSON(http.StatusInternalServerError, apiErrorBody(errorValueQueryFailed, messageQueryFailed))
	}
}

func newProjectResponse(record model.Project) projectResponse {
	return projectResponse{
		ID:             record.ID,
		OwnerID:        record.OwnerID,
		Name:           record.Name,
		Description:    record.Description,
		HTMLContent:    record.HTMLContent,
		Status:         string(record.Status),
		Subdomain:      record.Subdomain,
		PublishedURL:   record.PublishedURL,
		SEOTitle:       record.SEOTitle,
		SEODescription: record.SEODescription,
		CreatedAt:      record.CreatedAt.Unix(),
		UpdatedAt:      record.UpdatedAt.Unix(),
	}
}

func newVersionResponse(version model.SiteVersion) versionResponse {
	return versionResponse{
		ID:            version.ID,
		ProjectID:     version.ProjectID,
		VersionNumber: version.VersionNumber,
		HTMLContent:   version.HTMLContent,
		Description:   version.Description,
		CreatedAt:     version.CreatedAt.Unix(),
	}
}

func newCollaboratorResponse(collaborator model.Collaborator) collaboratorResponse {
	return collaboratorResponse{
		ID:         collaborator.ID,
		ProjectID:  collaborator.ProjectID,
		Email:      collaborator.Email,
		Permission: string(collaborator.Permission),
		InvitedBy:  collaborator.InvitedBy,
		CreatedAt:  collaborator.CreatedAt.Unix(),
	}
}
