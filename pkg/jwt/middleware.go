package jwt

import (
	"strings"

	"chat-room/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserIDKey 用户ID在gin.Context中的键名
	ContextUserIDKey = "user_id"
	// ContextIdentityKey 发送者身份在gin.Context中的键名（用户名或游客昵称）
	ContextIdentityKey = "identity"
	// ContextAuthedKey 是否为认证用户的标记
	ContextAuthedKey = "authenticated"
	// GuestNameHeader 游客昵称请求头
	GuestNameHeader = "X-Guest-Name"
)

// AuthMiddleware JWT认证中间件（严格模式）
// 从请求头中提取Authorization: Bearer <token>
// 验证token并将用户身份存入gin.Context，缺失或无效直接拒绝
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "缺少Authorization请求头")
			c.Abort()
			return
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "token无效或已过期")
			c.Abort()
			return
		}

		setAuthedContext(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware 宽松认证中间件
// 携带有效token则视为认证用户，否则以X-Guest-Name请求头作为游客身份
// 发送、回应表情等操作允许游客参与，置顶等操作在处理器内再校验认证标记
func (s *JWTService) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			claims, err := s.ValidateToken(token)
			if err != nil {
				response.Unauthorized(c, "token无效或已过期")
				c.Abort()
				return
			}
			setAuthedContext(c, claims)
			c.Next()
			return
		}

		// 游客身份
		guest := strings.TrimSpace(c.GetHeader(GuestNameHeader))
		if guest != "" {
			c.Set(ContextIdentityKey, guest)
		}
		c.Set(ContextAuthedKey, false)
		c.Next()
	}
}

// bearerToken 从Authorization头提取token
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// setAuthedContext 将认证用户信息写入gin.Context
func setAuthedContext(c *gin.Context, claims *CustomClaims) {
	c.Set(ContextUserIDKey, claims.Subject)
	c.Set(ContextAuthedKey, true)
	if claims.Data != nil {
		if u, ok := claims.Data["username"].(string); ok {
			c.Set(ContextIdentityKey, u)
		}
	}
}

// GetUserID 从gin.Context中获取用户ID
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// GetIdentity 从gin.Context中获取发送者身份（用户名或游客昵称）
func GetIdentity(c *gin.Context) string {
	if identity, exists := c.Get(ContextIdentityKey); exists {
		if name, ok := identity.(string); ok {
			return name
		}
	}
	return ""
}

// IsAuthenticated 当前请求是否来自认证用户
func IsAuthenticated(c *gin.Context) bool {
	if authed, exists := c.Get(ContextAuthedKey); exists {
		if b, ok := authed.(bool); ok {
			return b
		}
	}
	return false
}
