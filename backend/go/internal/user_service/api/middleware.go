package api

import (
	"net/http"
	"strings"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/internal/user_service/service"

	"github.com/gin-gonic/gin"
)

// Gin 上下文中保存身份信息的键。
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// TokenParser 验证令牌并返回身份信息，由 service.Service 实现。
type TokenParser interface {
	ParseToken(token string) (service.Claims, error)
}

// AuthMiddleware 创建一个 Gin 中间件，用于验证 JWT。
// 令牌来自 "Authorization: Bearer <token>"；WebSocket 握手无法设置标头时，也接受 ?token= 查询参数。
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			return
		}

		claims, err := tokens.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			return
		}

		// 将身份信息存储在 Gin 的上下文中，以便后续的处理函数可以使用
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, string(claims.Role))
		c.Next()
	}
}

// RequireRole 拒绝不具备指定角色的请求，必须放在 AuthMiddleware 之后。
func RequireRole(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != string(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom 从 Gin 上下文中读取 AuthMiddleware 写入的身份信息。
func ClaimsFrom(c *gin.Context) service.Claims {
	return service.Claims{
		UserID: c.GetString(ContextUserID),
		Role:   models.UserRole(c.GetString(ContextRole)),
	}
}
