// File: scan.go
package models

import (
	"time"
)

// Scan is the durable record of one scan request. Created once per accepted
// request and mutated only by the orchestrator; it reaches exactly one
// terminal status, with completed_partial as the escape hatch when the global
// time budget expires.
type Scan struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID      string     `gorm:"not null;size:36;index:idx_scans_workspace" json:"workspace_id"`
	ScanType         string     `gorm:"not null;size:20;index:idx_scans_type" json:"scan_type"`
	Target           string     `gorm:"not null;size:255" json:"target"`
	Status           string     `gorm:"not null;size:30;index:idx_scans_status" json:"status"`
	CriticalCount    int        `gorm:"not null;default:0" json:"critical_count"`
	HighCount        int        `gorm:"not null;default:0" json:"high_count"`
	MediumCount      int        `gorm:"not null;default:0" json:"medium_count"`
	LowCount         int        `gorm:"not null;default:0" json:"low_count"`
	InfoCount        int        `gorm:"not null;default:0" json:"info_count"`
	PrivacyScore     int        `gorm:"not null;default:100" json:"privacy_score"`
	TotalFindings    int        `gorm:"not null;default:0" json:"total_findings"`
	ProviderCounts   JSONB      `gorm:"type:jsonb" json:"provider_counts"`
	CacheKey         *string    `gorm:"size:512" json:"cache_key,omitempty"`
	CachedFromScanID *string    `gorm:"size:36" json:"cached_from_scan_id,omitempty"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time  `gorm:"not null;default:NOW();index:idx_scans_created" json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `gorm:"not null;default:NOW()" json:"updated_at"`
}

// TableName specifies the table name for the Scan model.
func (Scan) TableName() string {
	return "scans"
}

// Finding is one persisted UFM finding, linked to the scan that produced it.
type Finding struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID      string     `gorm:"not null;size:36;index:idx_findings_scan" json:"scan_id"`
	WorkspaceID string     `gorm:"not null;size:36;index:idx_findings_workspace" json:"workspace_id"`
	Provider    string     `gorm:"not null;size:100;index:idx_findings_provider" json:"provider"`
	Kind        string     `gorm:"not null;size:100" json:"kind"`
	Severity    string     `gorm:"not null;size:20;index:idx_findings_severity" json:"severity"`
	Confidence  float64    `gorm:"not null;default:0.7" json:"confidence"`
	ObservedAt  time.Time  `gorm:"not null" json:"observed_at"`
	Evidence    JSONBArray `gorm:"type:jsonb" json:"evidence"`
	Meta        JSONB      `gorm:"type:jsonb" json:"meta,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:NOW()" json:"created_at"`
}

// TableName specifies the table name for the Finding model.
func (Finding) TableName() string {
	return "findings"
}

// ScanProgress is the single-row-per-scan progress projection, overwritten on
// every update. Only the orchestrator writes it, so last-writer-wins is fine.
type ScanProgress struct {
	ScanID             string      `gorm:"primaryKey;size:36" json:"scan_id"`
	Status             string      `gorm:"not null;size:30" json:"status"`
	TotalProviders     int         `gorm:"not null;default:0" json:"total_providers"`
	CompletedProviders int         `gorm:"not null;default:0" json:"completed_providers"`
	CurrentProviders   StringSlice `gorm:"type:jsonb" json:"current_providers"`
	FindingsCount      int         `gorm:"not null;default:0" json:"findings_count"`
	Message            string      `gorm:"size:512" json:"message"`
	Error              bool        `gorm:"not null;default:false" json:"error"`
	UpdatedAt          time.Time   `gorm:"not null;default:NOW()" json:"updated_at"`
}

// TableName specifies the table name for the ScanProgress model.
func (ScanProgress) TableName() string {
	return "scan_progress"
}

// ScanStatus constants mirrored from the domain package for query sites that
// only have the models import.
const (
	ScanStatusPending          = "pending"
	ScanStatusRunning          = "running"
	ScanStatusCompleted        = "completed"
	ScanStatusCompletedPartial = "completed_partial"
	ScanStatusError            = "error"
	ScanStatusTimeout          = "timeout"
)
