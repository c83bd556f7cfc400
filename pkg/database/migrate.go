package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	pkgerrors "volunteer-hub/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable 版本表与其他共用同库的服务隔开
const migrationsTable = "volunteer_hub_schema_migrations"

// RunMigrations 把志愿者相关表（活动、班次、报名、分配、邮件记录、定时邮件）升级到最新版本
// 库处于 dirty 状态时拒绝启动，返回 ErrDirtySchema
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("加载志愿者迁移文件失败: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("初始化迁移实例失败: %w", err)
	}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("读取迁移版本失败: %w", err)
	}
	if dirty {
		logger.Error("志愿者库迁移处于 dirty 状态，请修复后重启", zap.Uint("version", from))
		return fmt.Errorf("%w: version %d", pkgerrors.ErrDirtySchema, from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行志愿者库迁移失败: %w", err)
	}

	to, _, _ := m.Version()
	if to == from {
		logger.Info("志愿者库已是最新版本", zap.Uint("version", to))
	} else {
		logger.Info("志愿者库迁移完成", zap.Uint("from", from), zap.Uint("to", to))
	}
	return nil
}

// migrationFiles 列出内嵌的迁移文件名，按文件名排序
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
