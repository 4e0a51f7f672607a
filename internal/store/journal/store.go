// Package journal keeps a local record of every calculate_position round
// trip.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	StatusOK          = "ok"
	StatusRemoteError = "remote_error"
	StatusFailed      = "failed"

	DefaultListLimit = 20
	maxListLimit     = 500
)

// Entry is one calculation as sent and as answered.
type Entry struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Status    string          `json:"status"`
	Params    json.RawMessage `json:"params"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type entryModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EntryID       string         `gorm:"column:entry_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Side          string         `gorm:"column:side"`
	Status        string         `gorm:"column:status"`
	Params        datatypes.JSON `gorm:"column:params"`
	Result        datatypes.JSON `gorm:"column:result"`
	Error         string         `gorm:"column:error"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (entryModel) TableName() string { return "calculations" }

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append stores e, filling ID and CreatedAt when unset, and returns the
// stored entry.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.db == nil {
		return e, fmt.Errorf("journal: store not initialized")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	m := entryModel{
		EntryID:       e.ID,
		Symbol:        e.Symbol,
		Side:          e.Side,
		Status:        e.Status,
		Params:        datatypes.JSON(e.Params),
		Result:        datatypes.JSON(e.Result),
		Error:         e.Error,
		CreatedAtUnix: e.CreatedAt.UnixMilli(),
	}
	if len(m.Params) == 0 {
		m.Params = datatypes.JSON("{}")
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return e, fmt.Errorf("journal append: %w", err)
	}
	return e, nil
}

// Recent lists entries newest first. A non-positive limit means
// DefaultListLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal: store not initialized")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var rows []entryModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, m := range rows {
		out = append(out, Entry{
			ID:        m.EntryID,
			Symbol:    m.Symbol,
			Side:      m.Side,
			Status:    m.Status,
			Params:    json.RawMessage(m.Params),
			Result:    json.RawMessage(m.Result),
			Error:     m.Error,
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		})
	}
	return out, nil
}
