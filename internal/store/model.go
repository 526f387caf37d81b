package store

import (
	"time"
)

// PredictionSession is the durable record of one detection run over one image.
// The same struct backs the relational schema (via the gorm tags) and the
// DynamoDB item layout.
type PredictionSession struct {
	UID            string      `gorm:"column:uid;primaryKey" json:"uid"`
	Timestamp      time.Time   `gorm:"column:timestamp" json:"timestamp"`
	OriginalImage  string      `gorm:"column:original_image" json:"original_image"`
	PredictedImage string      `gorm:"column:predicted_image" json:"predicted_image"`
	ChatID         string      `gorm:"column:chat_id" json:"chat_id,omitempty"`
	Detections     []Detection `gorm:"foreignKey:PredictionUID;references:UID;constraint:OnDelete:CASCADE" json:"detections"`
}

func (PredictionSession) TableName() string {
	return "prediction_sessions"
}

// Detection is one labeled, scored, bounded-box object found in an image.
// Box is [x1, y1, x2, y2] in input-image pixel space.
type Detection struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	PredictionUID string    `gorm:"column:prediction_uid;index" json:"-"`
	Label         string    `gorm:"column:label;index" json:"label"`
	Score         float64   `gorm:"column:score;index" json:"score"`
	Box           []float64 `gorm:"column:box;serializer:json" json:"box"`
}

func (Detection) TableName() string {
	return "detection_objects"
}

// PredictionSummary is the score/label query result: one entry per matching
// session, regardless of how many of its detections qualified.
type PredictionSummary struct {
	UID       string    `json:"uid"`
	Timestamp time.Time `json:"timestamp"`
}
