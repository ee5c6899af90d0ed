package db

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

// DB is the read view of the store. All mutations go through Writer.
type DB struct {
	Conn *gorm.DB
}

// Open connects, migrates and applies the sqlite pragmas. The pool is held to
// one connection: sqlite allows a single writer, and a named in-memory
// database lives only as long as a connection to it stays open.
func Open(dialector gorm.Dialector) (*DB, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameTrackerCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryStorage),
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable sqlite foreign key support: %w", err)
	}

	if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to set sqlite journal mode: %w", err)
	}

	err = conn.AutoMigrate(
		&models.TrackedDevice{},
		&models.Location{},
		&models.DetectionEvent{},
		&models.TrackerNotification{},
		&models.DeviceTypeSetting{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed")

	return &DB{Conn: conn}, nil
}

func (d *DB) Read(ctx context.Context) *gorm.DB {
	return d.Conn.WithContext(ctx)
}

func (d *DB) Close() error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UseSqliteDialector opens a file database. An empty path falls back to
// TRACKER_DB_PATH, then tracker.db.
func UseSqliteDialector(path string) gorm.Dialector {
	if path == "" {
		var found bool
		if path, found = os.LookupEnv(common.EnvKeyTrackerDbPath); !found {
			path = "tracker.db"
		}
	}
	return sqlite.Open(path)
}

// UseMemorySqliteDialector returns a fresh, uniquely named in-memory database
// so tests never share state.
func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}
