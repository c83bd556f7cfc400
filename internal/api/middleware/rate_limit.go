package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"volunteer-hub/pkg/redis"
	"volunteer-hub/pkg/response"
	"volunteer-hub/pkg/session"
)

// RateLimit 基于 Redis 滑动窗口的速率限制中间件
// 已登录用户按用户 ID 计数，匿名请求按客户端 IP 计数
// rdb 为 nil 或 Redis 出错时降级放行
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if v, ok := c.Get(SessionUserKey); ok {
			if u, ok := v.(*session.User); ok && u.ID != "" {
				subject = "user:" + u.ID
			}
		}

		key := fmt.Sprintf("rate_limit:%s:%s", subject, c.FullPath())
		allowed, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			response.TooManyRequests(c, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
