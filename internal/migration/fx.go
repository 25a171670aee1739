package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(runMigrate),
)

// runMigrate applies the embedded SQL on postgres and falls back to model
// migration for the other dialects.
func runMigrate(conn *gorm.DB, log *zap.Logger) error {
	dialect := conn.Dialector.Name()
	if dialect != "postgres" {
		log.Info("migrating schema from models", zap.String("dialect", dialect))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying sql migrations")
	return RunMigrations(sqlDB)
}
