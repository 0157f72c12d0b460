package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderTenantID names the operator tenant on management and usage routes.
// Authentication is handled in front of this service; the header is trusted.
const HeaderTenantID = "X-Tenant-ID"

const tenantKey = "tenantID"

var tenantRE = regexp.MustCompile(`^[A-Za-z0-9._\-:]{1,64}$`)

// Tenant requires a well-formed X-Tenant-ID and stores it for TenantFrom.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderTenantID)
		if !tenantRE.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_request",
				"message":    "missing or invalid " + HeaderTenantID,
			})
			return
		}
		c.Set(tenantKey, id)
		l := LoggerFrom(c).With().Str("tenant_id", id).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// TenantFrom returns the tenant set by Tenant, or "".
func TenantFrom(c *gin.Context) string {
	v, _ := c.Get(tenantKey)
	return asString(v)
}
