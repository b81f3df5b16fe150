package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/security"
)

// RequireCapability checks action on a resource of kind before the handler
// runs. Used for read routes; mutating operations check inside the domain
// services where the resource attributes are known.
func RequireCapability(authz security.Authorizer, action security.Action, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := appctx.GetActor(c.Request.Context())
		res := security.Resource{Kind: kind, ID: c.Param("id")}
		if err := security.Require(c.Request.Context(), authz, actor, action, res); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}
