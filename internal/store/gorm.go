package store

import (
	"fmt"
	"time"

	"github.com/cropdesk/cropdesk/internal/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormWriter routes gorm's own log lines to zap.
type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var dia gorm.Dialector

	if cfg.Database.Type == "pgsql" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s",
			cfg.Database.Hostname,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Port,
		)
		if cfg.Database.Name != "" {
			dsn = fmt.Sprintf("%s dbname=%s", dsn, cfg.Database.Name)
		}
		dia = postgres.Open(dsn)
	} else {
		dia = sqlite.Open(cfg.Database.Name)
	}

	newLogger := logger.New(
		gormWriter{log: zap.S().Named("gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	newDB, err := gorm.Open(dia, &gorm.Config{Logger: newLogger, TranslateError: true})
	if err != nil {
		zap.S().Named("gorm").Errorw("failed to connect database", "error", err)
		return nil, err
	}

	sqlDB, err := newDB.DB()
	if err != nil {
		zap.S().Named("gorm").Errorw("failed to configure connections", "error", err)
		return nil, err
	}
	if cfg.Database.Type == "pgsql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)

		var version string
		if result := newDB.Raw("SELECT version()").Scan(&version); result.Error != nil {
			return nil, result.Error
		}
		zap.S().Named("gorm").Infof("PostgreSQL information: '%s'", version)
	} else {
		// sqlite serializes writers; a single connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}

	return newDB, nil
}
