package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"
)

type Config struct {
	Port          string
	MaxUploadSize int64
	UploadDir     string

	StorageType   string
	SQLitePath    string
	DynamoDBTable string

	AWSRegion       string
	S3Bucket        string
	SQSQueueURL     string
	CallbackBaseURL string
	InferenceURL    string

	// Bound on every outbound network call (S3, SQS, DynamoDB, webhook).
	RequestTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		StorageType:     getEnv("STORAGE_TYPE", StorageSQLite),
		SQLitePath:      getEnv("SQLITE_DB_PATH", "./predictions.db"),
		DynamoDBTable:   getEnv("DYNAMODB_TABLE", "Predictions"),
		AWSRegion:       getEnv("AWS_REGION", "eu-north-1"),
		S3Bucket:        os.Getenv("AWS_S3_BUCKET"),
		SQSQueueURL:     os.Getenv("SQS_QUEUE_URL"),
		CallbackBaseURL: os.Getenv("CALLBACK_BASE_URL"),
		InferenceURL:    getEnv("INFERENCE_URL", "http://localhost:5000/predict"),
	}

	maxUpload := getEnv("MAX_UPLOAD_SIZE", "104857600")
	maxSize, err := strconv.ParseInt(maxUpload, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: %w", maxUpload, err)
	}
	cfg.MaxUploadSize = maxSize

	timeoutStr := getEnv("REQUEST_TIMEOUT_SECONDS", "30")
	timeoutSec, err := strconv.Atoi(timeoutStr)
	if err != nil || timeoutSec <= 0 {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS %q", timeoutStr)
	}
	cfg.RequestTimeout = time.Duration(timeoutSec) * time.Second

	if cfg.StorageType != StorageSQLite && cfg.StorageType != StorageDynamoDB {
		return nil, fmt.Errorf("unsupported STORAGE_TYPE: %s", cfg.StorageType)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
