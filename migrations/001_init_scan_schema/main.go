package main

import (
	"log"

	"github.com/ExposureScan/go-api/exposure/postgres"
)

func main() {
	db := postgres.GetDB()
	if db == nil {
		log.Fatalf("Failed to establish database connection")
	}

	log.Println("Applying scan engine schema...")

	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Composite index for the daily guardrail query: scans per workspace
	// since midnight.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_scans_workspace_created
		ON scans (workspace_id, created_at)`).Error; err != nil {
		log.Fatalf("Failed to create workspace/created index: %v", err)
	}

	// Partial index for the global concurrency guardrail: only non-terminal
	// scans are ever counted.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_scans_active
		ON scans (status) WHERE status IN ('pending', 'running')`).Error; err != nil {
		log.Fatalf("Failed to create active-scan index: %v", err)
	}

	log.Println("Scan engine schema is up to date")
}
