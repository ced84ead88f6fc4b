// File: connection.go
package postgres

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ExposureScan/go-api/exposure/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
)

// defaultDSN is used when EXPOSURE_POSTGRES_DSN is unset; it matches the
// docker-compose development environment.
const defaultDSN = "host=exposure-postgres user=postgres password=postgres dbname=exposure port=5432 sslmode=disable"

// connect opens the connection and migrates the scan schema. Failure leaves
// db nil: callers check GetDB() for nil and degrade rather than panic so a
// library import never kills the process.
func connect() {
	dsn := os.Getenv("EXPOSURE_POSTGRES_DSN")
	if dsn == "" {
		dsn = defaultDSN
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return
	}

	if err := Migrate(conn); err != nil {
		slog.Error("Failed to migrate database schema", "error", err)
		return
	}

	db = conn
}

// Migrate applies the scan schema to the given connection.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Workspace{},
		&models.Scan{},
		&models.Finding{},
		&models.ScanProgress{},
		&models.CreditLedgerEntry{},
		&models.ProviderEvent{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// GetDB returns the shared connection, connecting on first use. Returns nil
// when the database is unavailable.
func GetDB() *gorm.DB {
	dbOnce.Do(connect)
	return db
}

// SetDB overrides the shared connection. Intended for tests and for binaries
// that manage their own connection lifecycle.
func SetDB(conn *gorm.DB) {
	dbOnce.Do(func() {}) // disarm lazy connect
	db = conn
}
