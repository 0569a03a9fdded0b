package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HeaderAdminSecret 是平台管理员凭据所在的请求头。
const HeaderAdminSecret = "X-Admin-Secret"

// Admin 返回一个 Gin 中间件，仅在上下文中标记请求是否出示了
// 平台管理员密钥，本身从不拒绝请求。DELETE /rooms/:id 这类
// "管理员或房主" 的端点依赖这个标记做组合判断。
func Admin(secret string) gin.HandlerFunc {
	if secret == "" {
		panic("admin secret cannot be empty for Admin middleware")
	}
	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderAdminSecret)
		isAdmin := presented != "" &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
		c.Set("is_admin", isAdmin)
		c.Next()
	}
}

// RequireAdmin 返回一个 Gin 中间件，拒绝未被 Admin 标记为管理员的请求。
// 必须挂在 Admin 之后。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("is_admin") {
			logrus.WithField("path", c.Request.URL.Path).Warn("RequireAdmin: Missing or invalid admin secret")
			c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
