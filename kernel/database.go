package kernel

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.nhat.io/otelsql"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"git.sr.ht/~aondrejcak/payout-api/ledger"
)

func (art *AppRuntime) dialector() (gorm.Dialector, error) {
	if art.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is not set")
	}
	switch art.DatabaseDriver {
	case "mysql":
		return mysql.Open(art.DatabaseDSN), nil
	case "postgres":
		return postgres.Open(art.DatabaseDSN), nil
	case "sqlite":
		return sqlite.Open(art.DatabaseDSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", art.DatabaseDriver)
	}
}

// PrepareDatabase opens DatabaseClient, instruments it and, when migrate is
// set, creates or updates the ledger tables.
func (art *AppRuntime) PrepareDatabase(migrate bool) error {
	level := logger.Info
	if art.IsProduction() {
		level = logger.Warn
	}
	dbLogger := logger.New(
		log.New(art.Logger.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  !art.IsProduction(),
		},
	)

	dialector, err := art.dialector()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger, TranslateError: true})
	if err != nil {
		return err
	}

	if err = db.Use(otelgorm.NewPlugin(
		otelgorm.WithAttributes(),
		otelgorm.WithTracerProvider(otel.GetTracerProvider()),
	)); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if art.DatabaseDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if err := otelsql.RecordStats(sqlDB); err != nil {
		art.Logger.Warn().Err(err).Msg("connection pool metrics unavailable")
	}

	if migrate {
		if err := ledger.Migrate(db); err != nil {
			return err
		}
	}

	art.DatabaseClient = db
	return nil
}
