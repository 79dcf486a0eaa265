// Package audit persists operator actions. Every privileged command
// (guardrail reset, force, strategy enable/disable) leaves a row; a nil
// store degrades to log-only so a missing database never blocks control.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one audit row. Rows are append-only.
type Entry struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Actor     string    `gorm:"index;not null"`
	Action    string    `gorm:"index;not null"`
	Target    string    `gorm:"not null"`
	Detail    string
	CreatedAt time.Time `gorm:"index;not null"`
}

// TableName keeps the table name stable across gorm versions.
func (Entry) TableName() string { return "operator_audit" }

// Store is the append-only audit log.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the audit table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open audit store")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit store")
	}
	return &Store{db: db}, nil
}

// Record appends one entry. A nil store logs and succeeds.
func (s *Store) Record(ctx context.Context, actor, action, target, detail string) error {
	if s == nil {
		logs.Infof("audit: actor=%s action=%s target=%s detail=%s", actor, action, target, detail)
		return nil
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, "append audit entry").With("action", action)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var entries []Entry
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
