package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
)

const contextKeyCaller = "sitebuilder_caller"

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// RequireAPICaller rejects requests without a valid bearer token, answering in the project API error shape.
func RequireAPICaller(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return identifyCaller(verifier, logger, apiErrorBody, true)
}

// IdentifyFunctionCaller stores the caller when a bearer token is sent and lets anonymous requests through,
// leaving the handler to decide when a missing credential matters. Invalid tokens are still rejected.
func IdentifyFunctionCaller(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return identifyCaller(verifier, logger, functionErrorBody, false)
}

func identifyCaller(verifier auth.Verifier, logger *zap.Logger, body errorBodyBuilder, required bool) gin.HandlerFunc {
	return func(context *gin.Context) {
		token, tokenErr := auth.BearerToken(context.GetHeader("Authorization"))
		if tokenErr != nil {
			if !required && errors.Is(tokenErr, auth.ErrMissingCredential) {
				context.Next()
				return
			}
			context.AbortWithStatusJSON(http.StatusUnauthorized, body(errorValueUnauthorized, messageUnauthorized))
			return
		}
		caller, verifyErr := verifier.Verify(context.Request.Context(), token)
		if verifyErr != nil {
			if !errors.Is(verifyErr, auth.ErrInvalidCredential) && !errors.Is(verifyErr, auth.ErrMissingSubject) {
				logger.Warn("bearer_verification_failed", zap.Error(verifyErr))
			}
			context.AbortWithStatusJSON(http.StatusUnauthorized, body(errorValueUnauthorized, messageUnauthorized))
			return
		}
		context.Set(contextKeyCaller, caller)
		context.Next()
	}
}

// CallerFrom returns the caller stored by the bearer middleware.
func CallerFrom(context *gin.Context) (auth.Caller, bool) {
	value, exists := context.Get(contextKeyCaller)
	if !exists {
		return auth.Caller{}, false
	}
	caller, ok := value.(auth.Caller)
	return caller, ok
}
