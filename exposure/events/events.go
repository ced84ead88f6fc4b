package events

import (
	"fmt"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres"
	"github.com/ExposureScan/go-api/exposure/postgres/models"
)

// EventFilters represents filters for querying provider events
type EventFilters struct {
	Limit     int
	Offset    int
	ScanID    string
	Provider  string
	Event     string
	StartTime *time.Time
	EndTime   *time.Time
}

// EventStats represents aggregated provider event statistics
type EventStats struct {
	TotalEvents  int                    `json:"total_events"`
	ByEvent      map[string]int         `json:"by_event"`
	ByProvider   map[string]int         `json:"by_provider"`
	RecentEvents []models.ProviderEvent `json:"recent_events"`
}

// GetEvents retrieves provider events from PostgreSQL with filters
func GetEvents(filters EventFilters) ([]models.ProviderEvent, int, error) {
	db := postgres.GetDB()
	if db == nil {
		return nil, 0, fmt.Errorf("database connection not available")
	}

	// Build query with filters
	query := db.Model(&models.ProviderEvent{})

	if filters.ScanID != "" {
		query = query.Where("scan_id = ?", filters.ScanID)
	}
	if filters.Provider != "" {
		query = query.Where("provider = ?", filters.Provider)
	}
	if filters.Event != "" {
		query = query.Where("event = ?", filters.Event)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", filters.EndTime)
	}

	// Get total count before pagination
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	// Apply pagination and ordering
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Limit > 500 {
		filters.Limit = 500
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	var events []models.ProviderEvent
	err := query.
		Order("created_at DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&events).Error

	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}

	return events, int(total), nil
}

// GetScanEvents retrieves all provider events for one scan, oldest first so
// the sequence reads as a timeline.
func GetScanEvents(scanID string, limit int) ([]models.ProviderEvent, error) {
	db := postgres.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	if limit <= 0 {
		limit = 200
	}

	var events []models.ProviderEvent
	err := db.Where("scan_id = ?", scanID).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error

	if err != nil {
		return nil, fmt.Errorf("failed to get events for scan %s: %w", scanID, err)
	}

	return events, nil
}

// GetEventStatistics returns aggregated provider event statistics
func GetEventStatistics() (*EventStats, error) {
	db := postgres.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	stats := &EventStats{
		ByEvent:    make(map[string]int),
		ByProvider: make(map[string]int),
	}

	// Get total count
	var total int64
	if err := db.Model(&models.ProviderEvent{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	stats.TotalEvents = int(total)

	// Group by event type
	var eventCounts []struct {
		Event string
		Count int
	}
	if err := db.Model(&models.ProviderEvent{}).
		Select("event, COUNT(*) as count").
		Group("event").
		Scan(&eventCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to count by event: %w", err)
	}
	for _, item := range eventCounts {
		stats.ByEvent[item.Event] = item.Count
	}

	// Group by provider
	var providerCounts []struct {
		Provider string
		Count    int
	}
	if err := db.Model(&models.ProviderEvent{}).
		Select("provider, COUNT(*) as count").
		Group("provider").
		Scan(&providerCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to count by provider: %w", err)
	}
	for _, item := range providerCounts {
		stats.ByProvider[item.Provider] = item.Count
	}

	// Get recent events (last 10)
	var recentEvents []models.ProviderEvent
	if err := db.Model(&models.ProviderEvent{}).
		Order("created_at DESC").
		Limit(10).
		Find(&recentEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	stats.RecentEvents = recentEvents

	return stats, nil
}

// ProviderFailureRate returns the failure ratio for a provider over the given
// window; the kill-switch policy feeds on this.
func ProviderFailureRate(providerID string, window time.Duration) (float64, error) {
	db := postgres.GetDB()
	if db == nil {
		return 0, fmt.Errorf("database connection not available")
	}

	cutoff := time.Now().Add(-window)

	var total, failed int64
	err := db.Model(&models.ProviderEvent{}).
		Where("provider = ? AND created_at >= ? AND event IN ?",
			providerID, cutoff, []string{models.ProviderEventSuccess, models.ProviderEventFailed}).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count provider events: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	err = db.Model(&models.ProviderEvent{}).
		Where("provider = ? AND created_at >= ? AND event = ?",
			providerID, cutoff, models.ProviderEventFailed).
		Count(&failed).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count provider failures: %w", err)
	}

	return float64(failed) / float64(total), nil
}

// DeleteOldEvents deletes provider events older than the specified duration
// This can be used for data retention policies
func DeleteOldEvents(olderThan time.Duration) (int64, error) {
	db := postgres.GetDB()
	if db == nil {
		return 0, fmt.Errorf("database connection not available")
	}

	cutoffTime := time.Now().Add(-olderThan)
	result := db.Where("created_at < ?", cutoffTime).Delete(&models.ProviderEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", result.Error)
	}

	return result.RowsAffected, nil
}
