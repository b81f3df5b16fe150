package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/pkg/logger"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the single writer of error responses. Causes of internal
// errors are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			appErr = apperror.NewInternal(err)
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed",
				"code", appErr.Code, "error", err)
		} else if appErr.Err != nil {
			logger.Debug(c.Request.Context(), "request rejected",
				"code", appErr.Code, "cause", appErr.Err)
		}

		resp := ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		if appErr.Code == apperror.CodeInternal {
			resp.Message = "Internal server error"
			resp.Details = map[string]any{"request_id": appctx.GetRequestID(c.Request.Context())}
		}

		body, _ := json.Marshal(resp)
		CompleteIdempotency(c, appErr.HTTPStatus, "application/json", body)
		c.Data(appErr.HTTPStatus, "application/json; charset=utf-8", body)
	}
}
