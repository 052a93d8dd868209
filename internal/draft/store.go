package draft

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"eventsync/lib/logger/sl"
)

// Store keeps in-progress note text on-device, keyed by (userID, activityID).
// It is the immediate source of truth for the textbox and survives reloads
// independent of network state. Every operation is best-effort: storage
// failures degrade to "no draft persistence" instead of crashing.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

type record struct {
	UserID     string `gorm:"primaryKey"`
	ActivityID string `gorm:"primaryKey"`
	Body       string
	UpdatedAt  time.Time
}

func (record) TableName() string { return "drafts" }

// Open opens (or creates) the draft database at path. Use ":memory:" for
// throwaway stores.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

// Read returns the draft for the key, and whether one exists.
func (s *Store) Read(userID, activityID string) (string, bool) {
	var rec record
	err := s.db.First(&rec, "user_id = ? AND activity_id = ?", userID, activityID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("draft read failed", sl.Err(err))
		}
		return "", false
	}
	return rec.Body, true
}

// Write upserts the draft for the key. Failures are swallowed.
func (s *Store) Write(userID, activityID, body string) {
	rec := record{
		UserID:     userID,
		ActivityID: activityID,
		Body:       body,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		s.log.Warn("draft write failed", sl.Err(err))
	}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
