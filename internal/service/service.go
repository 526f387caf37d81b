package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/okatz/objectdetect/internal/detect"
	"github.com/okatz/objectdetect/internal/imagestore"
	"github.com/okatz/objectdetect/internal/objectstore"
	"github.com/okatz/objectdetect/internal/store"
)

var (
	// ErrNoInput means the request carried neither an upload nor an
	// object-store reference.
	ErrNoInput = errors.New("no image file or image name provided")

	// ErrBucketNotConfigured means an object-store reference arrived but no
	// bucket is configured.
	ErrBucketNotConfigured = errors.New("object store bucket not configured")
)

type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key, destPath string) error
	Put(ctx context.Context, srcPath, bucket, key string) error
}

type Notifier interface {
	PredictionCompleted(ctx context.Context, uid, chatID string) error
}

// Service runs the detection pipeline shared by the HTTP handler and the
// queue worker: resolve input, detect, persist, then best-effort egress.
type Service struct {
	Store    store.Store
	Detector detect.Detector
	Images   *imagestore.ImageStore
	Objects  ObjectStore // nil disables object-store input and upload
	Notifier Notifier    // nil disables the completion callback
	Bucket   string      // default bucket for object-store references
}

// Input describes one detection job. Exactly one of the two input forms must
// be set: an object-store reference (ImageName or S3Key) or a local upload
// (OriginalPath). When both are present the object-store reference wins.
type Input struct {
	UID    string // generated when empty
	ChatID string

	ImageName string // object-store reference: key derived as {chatID}/original/{imageName}
	Bucket    string // overrides the service default
	S3Key     string // explicit key, used by queue jobs

	OriginalPath  string // local upload, already on disk
	PredictedPath string
}

type Result struct {
	UID    string   `json:"prediction_uid"`
	Count  int      `json:"detection_count"`
	Labels []string `json:"labels"`
}

func (s *Service) Process(ctx context.Context, in Input) (*Result, error) {
	uid := in.UID
	if uid == "" {
		uid = uuid.New().String()
	}

	fromObjectStore := in.ImageName != "" || in.S3Key != ""

	var originalPath, predictedPath string
	switch {
	case fromObjectStore:
		bucket := in.Bucket
		if bucket == "" {
			bucket = s.Bucket
		}
		if bucket == "" || s.Objects == nil {
			return nil, ErrBucketNotConfigured
		}
		key := in.S3Key
		if key == "" {
			key = objectstore.OriginalKey(in.ChatID, in.ImageName)
		}
		originalPath, predictedPath = s.Images.Paths(uid, filepath.Ext(key))
		if err := s.Objects.Fetch(ctx, bucket, key, originalPath); err != nil {
			return nil, fmt.Errorf("resolving input image: %w", err)
		}
		in.Bucket = bucket
	case in.OriginalPath != "":
		originalPath, predictedPath = in.OriginalPath, in.PredictedPath
	default:
		return nil, ErrNoInput
	}

	detections, err := s.Detector.Detect(ctx, originalPath, predictedPath)
	if err != nil {
		return nil, fmt.Errorf("running detection: %w", err)
	}

	session := &store.PredictionSession{
		UID:            uid,
		OriginalImage:  originalPath,
		PredictedImage: predictedPath,
		ChatID:         in.ChatID,
		Detections:     make([]store.Detection, 0, len(detections)),
	}
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		session.Detections = append(session.Detections, store.Detection{
			PredictionUID: uid,
			Label:         d.Label,
			Score:         d.Score,
			Box:           d.Box,
		})
		labels = append(labels, d.Label)
	}

	if err := s.Store.SavePrediction(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting prediction: %w", err)
	}

	s.egress(ctx, uid, in, predictedPath, fromObjectStore)

	return &Result{UID: uid, Count: len(detections), Labels: labels}, nil
}

// egress uploads the annotated image and fires the completion callback.
// Failures here are logged and swallowed: the prediction is already durable.
func (s *Service) egress(ctx context.Context, uid string, in Input, predictedPath string, fromObjectStore bool) {
	if fromObjectStore && s.Objects != nil && in.ImageName != "" {
		key := objectstore.PredictedKey(in.ChatID, in.ImageName)
		if err := s.Objects.Put(ctx, predictedPath, in.Bucket, key); err != nil {
			log.Printf("Failed to upload predicted image for %s: %v", uid, err)
		}
	}

	if s.Notifier != nil && in.ChatID != "" {
		if err := s.Notifier.PredictionCompleted(ctx, uid, in.ChatID); err != nil {
			log.Printf("Failed to send completion callback for %s: %v", uid, err)
		}
	}
}
