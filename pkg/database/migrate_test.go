package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 每个版本必须同时提供 up 与 down，golang-migrate 才能回滚
func TestMigrationFiles_Paired(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("迁移文件命名不规范: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
	assert.True(t, ups["000002_volunteer_event_emails"], "应包含活动定时邮件迁移")
}

func TestMigrationFiles_EventEmailSchema(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/000002_volunteer_event_emails.up.sql")
	require.NoError(t, err)
	sql := string(raw)
	for _, col := range []string{"send_offset_minutes", "require_confirmation", "last_sent_at", "template_id"} {
		assert.Contains(t, sql, col)
	}
}
