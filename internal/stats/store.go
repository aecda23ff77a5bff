// Package stats keeps content-free usage statistics per kiosk session.
package stats

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("session not found")

// SessionRecord holds counters only. Conversation text is never stored.
type SessionRecord struct {
	ID                   string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StartedAt            time.Time  `gorm:"index;not null"              json:"startedAt"`
	EndedAt              *time.Time `                                   json:"endedAt,omitempty"`
	TurnsCount           int        `                                   json:"turnsCount"`
	STTAttempts          int        `gorm:"column:stt_attempts"         json:"sttAttempts"`
	LSPAttempts          int        `gorm:"column:lsp_attempts"         json:"lspAttempts"`
	LSPFailedAttempts    int        `gorm:"column:lsp_failed_attempts"  json:"lspFailedAttempts"`
	TextFallbackCount    int        `                                   json:"textFallbackCount"`
	AvgConfidence        float64    `                                   json:"avgConfidence"`
	TotalDurationSeconds float64    `                                   json:"totalDurationSeconds"`
	UpdatedAt            time.Time  `                                   json:"updatedAt"`
}

func (SessionRecord) TableName() string {
	return "sessions"
}

// Summary aggregates every stored session.
type Summary struct {
	Sessions          int64   `json:"sessions"`
	Turns             int64   `json:"turns"`
	STTAttempts       int64   `json:"sttAttempts"`
	LSPAttempts       int64   `json:"lspAttempts"`
	LSPFailedAttempts int64   `json:"lspFailedAttempts"`
	TextFallbacks     int64   `json:"textFallbacks"`
	AvgConfidence     float64 `json:"avgConfidence"`
}

type Store struct {
	db *gorm.DB
}

// Open creates the database file and its directory when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create stats directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stats database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces a session record.
func (s *Store) Save(ctx context.Context, record SessionRecord) error {
	if record.ID == "" {
		return errors.New("session id is required")
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", record.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (SessionRecord, error) {
	var record SessionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return record, nil
}

// Recent returns the latest sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var records []SessionRecord
	if err := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return records, nil
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.db.WithContext(ctx).Model(&SessionRecord{}).Select(
		"COUNT(*) AS sessions, " +
			"COALESCE(SUM(turns_count), 0) AS turns, " +
			"COALESCE(SUM(stt_attempts), 0) AS stt_attempts, " +
			"COALESCE(SUM(lsp_attempts), 0) AS lsp_attempts, " +
			"COALESCE(SUM(lsp_failed_attempts), 0) AS lsp_failed_attempts, " +
			"COALESCE(SUM(text_fallback_count), 0) AS text_fallbacks, " +
			"COALESCE(AVG(CASE WHEN avg_confidence > 0 THEN avg_confidence END), 0) AS avg_confidence",
	).Scan(&summary).Error
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize sessions: %w", err)
	}
	return summary, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
