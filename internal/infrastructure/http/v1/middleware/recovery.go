// Package middleware provides HTTP middleware components.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/pkg/logger"
)

// Recovery turns a panic into a 500. It runs outside ErrorHandler, so it
// writes the response itself. The stack goes to the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"error", rec,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))

			body, _ := json.Marshal(ErrorResponse{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": appctx.GetRequestID(c.Request.Context())},
			})
			CompleteIdempotency(c, http.StatusInternalServerError, "application/json", body)
			if !c.Writer.Written() {
				c.Data(http.StatusInternalServerError, "application/json; charset=utf-8", body)
			}
			c.Abort()
		}()
		c.Next()
	}
}
