package database

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect initializes the database connection
func Connect() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	level := logger.Warn
	if os.Getenv("GORM_DEBUG") == "true" {
		level = logger.Info
	}

	var err error
	DB, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("✅ database connected")

	if err := autoMigrate(DB); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	tz, err := sessionTimezone(DB)
	if err != nil {
		log.WithError(err).Warn("⚠️  could not read database timezone")
	} else if !isUTC(tz) {
		log.WithField("timezone", tz).Warn("⚠️  database session is not UTC; date filters are evaluated in UTC")
	}

	return nil
}

// sessionTimezone reports the TimeZone setting of the connection.
func sessionTimezone(db *gorm.DB) (string, error) {
	var tz string
	if err := db.Raw("SHOW timezone").Scan(&tz).Error; err != nil {
		return "", err
	}
	return tz, nil
}

func isUTC(tz string) bool {
	switch strings.ToUpper(tz) {
	case "UTC", "ETC/UTC", "GMT", "ZULU", "Z":
		return true
	}
	return false
}

// autoMigrate runs database migrations
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Violation{},
	); err != nil {
		return err
	}
	return ensureGeoIndex(db)
}

// ensureGeoIndex installs earthdistance and indexes violation locations so
// radius filters can use earth_box.
func ensureGeoIndex(db *gorm.DB) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS cube",
		"CREATE EXTENSION IF NOT EXISTS earthdistance",
		"CREATE INDEX IF NOT EXISTS idx_violations_location ON violations USING gist (ll_to_earth(latitude, longitude))",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
