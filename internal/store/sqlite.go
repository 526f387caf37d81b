package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements Store on an embedded SQLite database. The foreign
// key from detection_objects to prediction_sessions is enforced (the pragma
// is enabled in the DSN), so orphan detection rows are rejected by the
// database itself.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	// mattn/go-sqlite3 leaves foreign_keys off unless asked.
	dsn := path + "?_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.AutoMigrate(&PredictionSession{}, &Detection{}); err != nil {
		return nil, fmt.Errorf("failed to migrate SQLite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SavePrediction(ctx context.Context, session *PredictionSession) error {
	if session == nil || session.UID == "" {
		return fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}
	if session.Timestamp.IsZero() {
		session.Timestamp = time.Now().UTC()
	}

	// Create inserts the session and any attached detections in one
	// transaction, so a completed run is fully visible or not at all.
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return s.wrap("saving prediction", err)
	}
	return nil
}

func (s *SQLiteStore) SaveDetections(ctx context.Context, uid string, detections []Detection) error {
	if uid == "" {
		return fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}
	if len(detections) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&PredictionSession{}).Where("uid = ?", uid).Count(&count).Error; err != nil {
			return s.wrap("checking session", err)
		}
		if count == 0 {
			return fmt.Errorf("session %s: %w", uid, ErrNotFound)
		}

		for i := range detections {
			detections[i].PredictionUID = uid
		}
		if err := tx.Create(&detections).Error; err != nil {
			return s.wrap("saving detections", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, uid string) (*PredictionSession, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty prediction uid", ErrInvalidArgument)
	}

	var session PredictionSession
	err := s.db.WithContext(ctx).Preload("Detections").First(&session, "uid = ?", uid).Error
	if err != nil {
		return nil, s.wrap(fmt.Sprintf("getting prediction %s", uid), err)
	}
	return &session, nil
}

func (s *SQLiteStore) GetPredictionsByScore(ctx context.Context, minScore float64) ([]PredictionSummary, error) {
	if !validScore(minScore) {
		return nil, fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidArgument, minScore)
	}

	var summaries []PredictionSummary
	err := s.db.WithContext(ctx).Model(&Detection{}).
		Select("DISTINCT detection_objects.prediction_uid AS uid, prediction_sessions.timestamp AS timestamp").
		Joins("JOIN prediction_sessions ON prediction_sessions.uid = detection_objects.prediction_uid").
		Where("detection_objects.score >= ?", minScore).
		Order("uid").
		Scan(&summaries).Error
	if err != nil {
		return nil, s.wrap("querying predictions by score", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) GetPredictionsByLabel(ctx context.Context, label string) ([]PredictionSummary, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidArgument)
	}

	var summaries []PredictionSummary
	err := s.db.WithContext(ctx).Model(&Detection{}).
		Select("DISTINCT detection_objects.prediction_uid AS uid, prediction_sessions.timestamp AS timestamp").
		Joins("JOIN prediction_sessions ON prediction_sessions.uid = detection_objects.prediction_uid").
		Where("detection_objects.label = ?", label).
		Order("uid").
		Scan(&summaries).Error
	if err != nil {
		return nil, s.wrap("querying predictions by label", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrap maps driver errors onto the store error taxonomy.
func (s *SQLiteStore) wrap(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w (%v)", op, ErrUnavailable, err)
	}
}

func newGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
		},
	)
}
