// File: repository.go
package scan

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ExposureScan/go-api/exposure"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
)

// Repository is the persistence surface the orchestrator depends on. The
// production implementation is GORM over Postgres; tests swap in an
// in-memory fake.
type Repository interface {
	GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error)
	IncrementMonthlyUsage(ctx context.Context, workspaceID string) error

	CreateScan(ctx context.Context, scan *models.Scan) error
	UpdateScan(ctx context.Context, scanID string, fields map[string]any) error
	GetScan(ctx context.Context, scanID string) (*models.Scan, error)
	ListScans(ctx context.Context, workspaceID string, limit int) ([]models.Scan, error)

	InsertFindings(ctx context.Context, scanID, workspaceID string, findings []exposure.Finding) error
	GetFindings(ctx context.Context, scanID string) ([]exposure.Finding, error)

	UpsertProgress(ctx context.Context, progress *models.ScanProgress) error
	GetProgress(ctx context.Context, scanID string) (*models.ScanProgress, error)

	// ScansToday and RunningScans implement guardrail.UsageReader.
	ScansToday(ctx context.Context, workspaceID string) (int, error)
	RunningScans(ctx context.Context) (int, error)
}

// GormRepository is the Postgres-backed Repository.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a Repository over the given connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) conn() (*gorm.DB, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	return r.db, nil
}

// GetWorkspace fetches the workspace record for guardrail and credit checks.
func (r *GormRepository) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	var ws models.Workspace
	if err := db.WithContext(ctx).Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", workspaceID, err)
	}
	return &ws, nil
}

// IncrementMonthlyUsage bumps the workspace's monthly scan counter. Resetting
// the counter at month boundaries is owned by the billing job, not here.
func (r *GormRepository) IncrementMonthlyUsage(ctx context.Context, workspaceID string) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	result := db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		UpdateColumn("scans_used_monthly", gorm.Expr("scans_used_monthly + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment monthly usage for workspace %s: %w", workspaceID, result.Error)
	}
	return nil
}

// CreateScan inserts the scan record.
func (r *GormRepository) CreateScan(ctx context.Context, scan *models.Scan) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now
	if err := db.WithContext(ctx).Create(scan).Error; err != nil {
		return fmt.Errorf("failed to create scan record: %w", err)
	}
	return nil
}

// UpdateScan applies a partial update to the scan record.
func (r *GormRepository) UpdateScan(ctx context.Context, scanID string, fields map[string]any) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	fields["updated_at"] = time.Now().UTC()
	result := db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("id = ?", scanID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update scan %s: %w", scanID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("scan %s not found", scanID)
	}
	return nil
}

// GetScan fetches one scan record by id.
func (r *GormRepository) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	var scan models.Scan
	if err := db.WithContext(ctx).Where("id = ?", scanID).First(&scan).Error; err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", scanID, err)
	}
	return &scan, nil
}

// ListScans returns a workspace's scans, newest first.
func (r *GormRepository) ListScans(ctx context.Context, workspaceID string, limit int) ([]models.Scan, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var scans []models.Scan
	err = db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scans for workspace %s: %w", workspaceID, err)
	}
	return scans, nil
}

// InsertFindings persists a scan's final finding set in one batch.
func (r *GormRepository) InsertFindings(ctx context.Context, scanID, workspaceID string, findings []exposure.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	db, err := r.conn()
	if err != nil {
		return err
	}
	rows := make([]models.Finding, len(findings))
	for i, f := range findings {
		rows[i] = toFindingRow(scanID, workspaceID, f)
	}
	if err := db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("failed to insert findings for scan %s: %w", scanID, err)
	}
	return nil
}

// GetFindings returns a scan's findings in storage order (worst first; the
// orchestrator writes them pre-sorted).
func (r *GormRepository) GetFindings(ctx context.Context, scanID string) ([]exposure.Finding, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	var rows []models.Finding
	if err := db.WithContext(ctx).Where("scan_id = ?", scanID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get findings for scan %s: %w", scanID, err)
	}
	findings := make([]exposure.Finding, len(rows))
	for i, row := range rows {
		findings[i] = fromFindingRow(row)
	}
	return findings, nil
}

// UpsertProgress overwrites the single progress row for a scan.
func (r *GormRepository) UpsertProgress(ctx context.Context, progress *models.ScanProgress) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).
		Where("scan_id = ?", progress.ScanID).
		Assign(progressAssignFields(progress)).
		FirstOrCreate(&models.ScanProgress{}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert progress for scan %s: %w", progress.ScanID, err)
	}
	return nil
}

// GetProgress fetches the live progress row for a scan.
func (r *GormRepository) GetProgress(ctx context.Context, scanID string) (*models.ScanProgress, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}
	var progress models.ScanProgress
	if err := db.WithContext(ctx).Where("scan_id = ?", scanID).First(&progress).Error; err != nil {
		return nil, fmt.Errorf("failed to get progress for scan %s: %w", scanID, err)
	}
	return &progress, nil
}

// ScansToday counts a workspace's scans created since UTC midnight.
func (r *GormRepository) ScansToday(ctx context.Context, workspaceID string) (int, error) {
	db, err := r.conn()
	if err != nil {
		return 0, err
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var count int64
	err = db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, midnight).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count today's scans: %w", err)
	}
	return int(count), nil
}

// RunningScans counts currently running scans across all workspaces.
func (r *GormRepository) RunningScans(ctx context.Context) (int, error) {
	db, err := r.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	err = db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("status IN ?", []string{models.ScanStatusPending, models.ScanStatusRunning}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count running scans: %w", err)
	}
	return int(count), nil
}

// progressAssignFields flattens the progress row into the upsert Assign map.
// A map, not the struct: zero values (a drained current_providers list, Error
// flipping back to false) must still overwrite the previous row, and GORM
// skips zero-valued struct fields.
func progressAssignFields(progress *models.ScanProgress) map[string]interface{} {
	return map[string]interface{}{
		"scan_id":             progress.ScanID,
		"status":              progress.Status,
		"total_providers":     progress.TotalProviders,
		"completed_providers": progress.CompletedProviders,
		"current_providers":   progress.CurrentProviders,
		"findings_count":      progress.FindingsCount,
		"message":             progress.Message,
		"error":               progress.Error,
		"updated_at":          time.Now().UTC(),
	}
}

// toFindingRow converts a domain finding to its storage row.
func toFindingRow(scanID, workspaceID string, f exposure.Finding) models.Finding {
	evidence := make(models.JSONBArray, len(f.Evidence))
	for i, e := range f.Evidence {
		evidence[i] = map[string]any{"key": e.Key, "value": e.Value}
	}
	return models.Finding{
		ScanID:      scanID,
		WorkspaceID: workspaceID,
		Provider:    f.Provider,
		Kind:        f.Kind,
		Severity:    string(f.Severity),
		Confidence:  f.Confidence,
		ObservedAt:  f.ObservedAt,
		Evidence:    evidence,
		Meta:        models.JSONB(f.Meta),
	}
}

// fromFindingRow converts a storage row back to the domain shape.
func fromFindingRow(row models.Finding) exposure.Finding {
	evidence := make([]exposure.Evidence, 0, len(row.Evidence))
	for _, item := range row.Evidence {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := m["key"].(string)
		value, _ := m["value"].(string)
		evidence = append(evidence, exposure.Evidence{Key: key, Value: value})
	}
	return exposure.Finding{
		Provider:   row.Provider,
		Kind:       row.Kind,
		Severity:   exposure.Severity(row.Severity),
		Confidence: row.Confidence,
		ObservedAt: row.ObservedAt,
		Evidence:   evidence,
		Meta:       map[string]any(row.Meta),
	}
}
