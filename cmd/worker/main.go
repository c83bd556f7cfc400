// Package main 后台 worker：消费主办方通知队列，并按 cron 发送确认提醒与活动定时邮件
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"volunteer-hub/config"
	"volunteer-hub/internal/job"
	"volunteer-hub/internal/repository"
	"volunteer-hub/internal/service"
	"volunteer-hub/internal/worker"
	"volunteer-hub/pkg/database"
	applogger "volunteer-hub/pkg/logger"
	"volunteer-hub/pkg/mailer"
	"volunteer-hub/pkg/queue"
	"volunteer-hub/pkg/redis"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	defer sqlDB.Close()

	// worker 必须有 Redis 才能消费队列
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Raw(), logger)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, mailer.New(&cfg.Mail, logger), jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := worker.NewHostNotificationProcessor(svc.HostNotification, jobQueue, logger)
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()

	var scheduler *job.Scheduler
	if cfg.Reminder.Enabled {
		scheduler = job.NewScheduler(logger)
		if err := scheduler.AddConfirmReminders(cfg.Reminder.Cron, svc.Reminder); err != nil {
			logger.Fatal("定时任务注册失败", zap.Error(err))
		}
		if err := scheduler.AddEventEmails(cfg.Reminder.EventEmailCron, svc.EventEmail); err != nil {
			logger.Fatal("定时任务注册失败", zap.Error(err))
		}
		scheduler.Start()
	}
	logger.Info("worker 已启动", zap.Bool("reminders", cfg.Reminder.Enabled))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("收到关闭信号，worker 停止中...", zap.String("signal", sig.String()))

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if scheduler != nil {
		scheduler.Stop(stopCtx)
	}
	select {
	case <-done:
	case <-stopCtx.Done():
		logger.Warn("等待通知任务结束超时")
	}

	logger.Info("worker 已停止")
}
