package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/confsentinel/sentinel/internal/api/utils"
	"github.com/confsentinel/sentinel/internal/config"
	"github.com/confsentinel/sentinel/internal/db/migrations"
)

// Connect initializes the database connection using the configured driver.
// The default is a host-local sqlite file; postgres is available for
// deployments that keep the registry off the monitored host.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: utils.GetGormLogger(),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	case config.DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DBDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	return db, nil
}

// Migrate runs the database migrations
func Migrate(db *gorm.DB) error {
	return migrations.Migrate(db)
}
