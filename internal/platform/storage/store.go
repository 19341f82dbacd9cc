// Package storage owns the local SQLite database. It keeps the device
// registration record so the client re-registers only when the token or
// tag set actually changed.
package storage

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	platformerrors "feelink-client-go/internal/platform/errors"
)

// DeviceRegistration is the persisted registration state. One row per
// installation; the installation id is minted once and never changes.
type DeviceRegistration struct {
	ID             uint      `gorm:"primaryKey"`
	InstallationID string    `gorm:"uniqueIndex;not null"`
	Platform       string    `gorm:"not null"`
	DeviceToken    string    `gorm:"not null"`
	Tags           string    `gorm:"not null"`
	RegisteredAt   time.Time `gorm:"not null"`
	SyncedAt       *time.Time
}

// Open opens (creating if needed) the client database at dsn and
// migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	const op = "open_database"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, op, "open sqlite database", err)
	}

	if err := db.AutoMigrate(&DeviceRegistration{}); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, op, "migrate schema", err)
	}
	return db, nil
}
