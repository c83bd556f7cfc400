package handler

import (
	"github.com/gin-gonic/gin"

	"volunteer-hub/internal/api/middleware"
	"volunteer-hub/pkg/session"
)

// SessionUser 从 Gin 上下文中提取会话用户
// 未登录时返回 nil，是否要求登录由业务层决定
func SessionUser(c *gin.Context) *session.User {
	v, exists := c.Get(middleware.SessionUserKey)
	if !exists {
		return nil
	}
	u, ok := v.(*session.User)
	if !ok || u.Anonymous() {
		return nil
	}
	return u
}
