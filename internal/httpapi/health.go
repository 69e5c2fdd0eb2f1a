package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandlers struct {
	database *gorm.DB
}

func NewHealthHandlers(database *gorm.DB) *HealthHandlers {
	return &HealthHandlers{database: database}
}

// Health reports whether the database answers pings.
func (handlers *HealthHandlers) Health(context *gin.Context) {
	sqlDatabase, databaseErr := handlers.database.DB()
	if databaseErr == nil {
		databaseErr = sqlDatabase.PingContext(context.Request.Context())
	}
	if databaseErr != nil {
		context.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	context.JSON(http.StatusOK, gin.H{"status": "ok"})
}
