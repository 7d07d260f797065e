package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotConfigured = errors.New("match store not configured")

// MatchRecord is what a session hands over when a match ends.
type MatchRecord struct {
	SessionCode   string
	WinnerSlot    int
	Scores        [4]int
	MaxScoreToWin int
	Players       []string // display names by slot, "" for an empty slot
	EndedAt       time.Time
}

// Recorder persists finished matches. Implementations must be safe for
// concurrent use; sessions record from their own goroutines.
type Recorder interface {
	RecordMatch(ctx context.Context, rec MatchRecord) error
}

// MatchResult is one finished match row.
type MatchResult struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionCode   string    `gorm:"type:varchar(6);index;not null" json:"session_code"`
	WinnerSlot    int       `gorm:"not null" json:"winner_slot"`
	Score1        int       `gorm:"default:0" json:"score_1"`
	Score2        int       `gorm:"default:0" json:"score_2"`
	Score3        int       `gorm:"default:0" json:"score_3"`
	Score4        int       `gorm:"default:0" json:"score_4"`
	MaxScoreToWin int       `gorm:"not null" json:"max_score_to_win"`
	Players       []string  `gorm:"serializer:json" json:"players"`
	EndedAt       time.Time `gorm:"index" json:"ended_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r MatchResult) Scores() [4]int {
	return [4]int{r.Score1, r.Score2, r.Score3, r.Score4}
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to postgres and migrates the schema. An empty dsn yields
// ErrNotConfigured.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, log)
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, fmt.Errorf("migrate match results: %w", err)
	}
	return &Store{db: db, log: log.Named("store")}, nil
}

func (s *Store) RecordMatch(ctx context.Context, rec MatchRecord) error {
	row := MatchResult{
		SessionCode:   rec.SessionCode,
		WinnerSlot:    rec.WinnerSlot,
		Score1:        rec.Scores[0],
		Score2:        rec.Scores[1],
		Score3:        rec.Scores[2],
		Score4:        rec.Scores[3],
		MaxScoreToWin: rec.MaxScoreToWin,
		Players:       rec.Players,
		EndedAt:       rec.EndedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record match %s: %w", rec.SessionCode, err)
	}
	s.log.Debug("match recorded", zap.String("session", rec.SessionCode), zap.Uint("id", row.ID))
	return nil
}

// RecentMatches returns the newest results for a session code, newest first.
func (s *Store) RecentMatches(ctx context.Context, code string, limit int) ([]MatchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []MatchResult
	err := s.db.WithContext(ctx).
		Where("session_code = ?", code).
		Order("ended_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list matches for %s: %w", code, err)
	}
	return rows, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
