package detect

import (
	"context"
	"errors"
)

// ErrDetectionFailed marks corrupt or unreadable input, or a model rejection.
var ErrDetectionFailed = errors.New("detection failed")

// Detection is one object found in an image. Box is [x1, y1, x2, y2] in
// input-image pixel space; coordinates come from the model as-is.
type Detection struct {
	Label string    `json:"label"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box"`
}

// Detector turns an image on disk into detections plus an annotated copy
// written to annotatedPath. On failure no partial annotated file is left
// behind.
type Detector interface {
	Detect(ctx context.Context, imagePath, annotatedPath string) ([]Detection, error)
}
