// internal/model/pipeline_event.go
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types written by the pipeline. Per-platform types are built with
// PublishedEvent, FailedEvent and CreatedEvent.
const (
	EventContentApproved   = "content_approved"
	EventContentScheduled  = "content_scheduled"
	EventContentRejected   = "content_rejected"
	EventPromotionCreated  = "promotion_created"
	EventPromotionFailed   = "promotion_failed"
	EventHashtagsGenerated = "hashtags_generated"
	EventHashtagsFallback  = "hashtags_fallback"
	EventHealthAlert       = "health_alert"
)

const (
	publishedSuffix = "_published"
	failedSuffix    = "_failed"
)

func PublishedEvent(p Platform) string { return string(p) + publishedSuffix }

func FailedEvent(p Platform) string { return string(p) + failedSuffix }

func CreatedEvent(p Platform) string { return string(p) + "_created" }

func IsDispatchSuccess(eventType string) bool {
	p, ok := strings.CutSuffix(eventType, publishedSuffix)
	return ok && Platform(p).IsValid()
}

func IsDispatchFailure(eventType string) bool {
	p, ok := strings.CutSuffix(eventType, failedSuffix)
	return ok && Platform(p).IsValid()
}

// IsFailure reports whether eventType records any kind of failure.
func IsFailure(eventType string) bool {
	return strings.HasSuffix(eventType, failedSuffix)
}

// PipelineEvent is an immutable audit-log entry describing one pipeline outcome.
type PipelineEvent struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	EventType    string         `db:"event_type" json:"event_type"`
	SubjectID    *uuid.UUID     `db:"subject_id" json:"subject_id,omitempty"`
	OccurredAt   time.Time      `db:"occurred_at" json:"occurred_at"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description,omitempty"`
	Metadata     map[string]any `db:"metadata" json:"metadata,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
}

// DayBounds returns the UTC [start, end) interval of the calendar day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
