package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestAutoMigrate(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"businesses", "business_hours", "business_social_links", "business_attributes", "business_images"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunMigrations_NilHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

func TestMigrate_NonPostgresUsesModels(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate-models?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	require.NoError(t, runMigrate(conn, zap.NewNop()))
	assert.True(t, conn.Migrator().HasTable("businesses"))
}
