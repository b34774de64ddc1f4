package api

import (
	"net/http"

	"checkout-service/internal/apperr"
	"checkout-service/internal/util"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope is the response shape of every API route
type envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// respondError renders err; it is the only place errors become HTTP responses
func respondError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	status := appErr.StatusCode()
	message := appErr.Message

	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("method", c.Request.Method)
			scope.SetTag("route", c.FullPath())
			scope.SetTag("kind", string(appErr.Kind))
			sentry.CaptureException(err)
		})

		if appErr.Kind == apperr.KindInternal {
			message = "internal server error"
		}
	}

	var data interface{}
	if appErr.Code != "" || appErr.Kind != apperr.KindInternal {
		data = gin.H{"error": appErr.Kind, "code": appErr.Code}
	}
	c.AbortWithStatusJSON(status, envelope{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// bindJSON decodes the body, reporting binding failures as validation errors
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}
