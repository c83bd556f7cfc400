package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-hub/config"
	"volunteer-hub/internal/api/handler"
	"volunteer-hub/internal/api/middleware"
	"volunteer-hub/pkg/redis"
	"volunteer-hub/pkg/session"
)

const (
	// maxBodyBytes 请求体上限，所有写接口只接收小 JSON
	maxBodyBytes = 64 << 10
	// actionRateLimit 每个调用者每分钟的班次操作次数上限
	actionRateLimit = 30
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时不启用限流
func Setup(cfg *config.Config, h *handler.Handler, resolver *session.Resolver, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	r.Use(middleware.Session(resolver, logger))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── 邮件一键确认链接 ──
	r.GET("/volunteer/shifts/:id/confirm", middleware.RateLimit(rdb, actionRateLimit, time.Minute), h.Shift.ConfirmLink)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 志愿者班次
		shifts := v1.Group("/shifts")
		{
			shifts.GET("/my", h.Shift.ListMine)
			shifts.GET("/my/calendar.ics", h.Shift.Calendar)

			actions := shifts.Group("/:id")
			actions.Use(middleware.RateLimit(rdb, actionRateLimit, time.Minute))
			{
				actions.POST("/confirm", h.Shift.Confirm)
				actions.POST("/cancel", h.Shift.Cancel)
				actions.POST("/uncancel", h.Shift.Uncancel)
				actions.POST("/reschedule", h.Shift.Reschedule)
			}
		}

		// 主办方
		v1.GET("/events/:id/roster.xlsx", h.Roster.Export)

		// 内部接口（共享密钥）
		internal := v1.Group("")
		internal.Use(middleware.InternalAuth(cfg.Auth.InternalSecret))
		{
			internal.POST("/volunteer-host-notifications", h.Notification.Send)
			internal.POST("/cron/confirm-reminders", h.Notification.RunReminders)
			internal.POST("/cron/volunteer-emails", h.Notification.RunEventEmails)
		}
	}

	return r
}
