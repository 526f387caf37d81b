package store

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/okatz/objectdetect/internal/config"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("prediction not found")
	ErrConflict        = errors.New("prediction already exists")
	ErrUnavailable     = errors.New("storage unavailable")
)

// Store abstracts the prediction storage backend. Both backends implement the
// same contract: duplicate uids are rejected with ErrConflict, appending to a
// missing session is rejected with ErrNotFound, and the score/label queries
// return each session at most once in deterministic (uid) order.
type Store interface {
	// SavePrediction creates the session record. Any detections already
	// attached to it are persisted in the same atomic write.
	SavePrediction(ctx context.Context, session *PredictionSession) error

	// SaveDetections appends a batch of detections to an existing session.
	SaveDetections(ctx context.Context, uid string, detections []Detection) error

	// GetPrediction returns the session with its full detection set.
	GetPrediction(ctx context.Context, uid string) (*PredictionSession, error)

	// GetPredictionsByScore returns every session owning at least one
	// detection with score >= minScore.
	GetPredictionsByScore(ctx context.Context, minScore float64) ([]PredictionSummary, error)

	// GetPredictionsByLabel returns every session owning at least one
	// detection with the exact (case-sensitive) label.
	GetPredictionsByLabel(ctx context.Context, label string) ([]PredictionSummary, error)

	Close() error
}

// New selects the backend once at startup based on configuration. The
// returned Store is safe for concurrent use by the HTTP handlers and the
// queue worker.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageType {
	case config.StorageSQLite:
		return NewSQLite(cfg.SQLitePath)
	case config.StorageDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return NewDynamoDB(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

func validScore(minScore float64) bool {
	return minScore >= 0 && minScore <= 1
}
