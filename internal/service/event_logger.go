// internal/service/event_logger.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/repository"
)

const defaultAppendTimeout = 2 * time.Second

// EventLogger is the pipeline's audit trail. Append is best-effort: failures
// are logged and never reach the caller.
type EventLogger struct {
	Repo          repository.EventRepositoryInterface
	Log           logrus.FieldLogger
	AppendTimeout time.Duration
}

func NewEventLogger(repo repository.EventRepositoryInterface, log logrus.FieldLogger, appendTimeout time.Duration) *EventLogger {
	if appendTimeout <= 0 {
		appendTimeout = defaultAppendTimeout
	}
	return &EventLogger{
		Repo:          repo,
		Log:           log.WithField("component", "event_logger"),
		AppendTimeout: appendTimeout,
	}
}

// Append records e. It survives caller cancellation but is bounded by AppendTimeout.
func (l *EventLogger) Append(ctx context.Context, e *model.PipelineEvent) {
	if l == nil || l.Repo == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.Log.WithField("event_type", e.EventType).Errorf("event append panicked: %v", r)
		}
	}()

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.AppendTimeout)
	defer cancel()

	if err := l.Repo.Append(actx, e); err != nil {
		l.Log.WithError(err).WithField("event_type", e.EventType).Warn("failed to append pipeline event")
	}
}

// ByDate returns the events of the UTC calendar day containing date, oldest first.
func (l *EventLogger) ByDate(ctx context.Context, date time.Time) ([]*model.PipelineEvent, error) {
	start, end := model.DayBounds(date)
	return l.Repo.Between(ctx, start, end)
}

// Recent returns the events of the trailing days up to and including now.
func (l *EventLogger) Recent(ctx context.Context, now time.Time, days int) ([]*model.PipelineEvent, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be at least 1")
	}
	return l.Repo.Between(ctx, now.AddDate(0, 0, -days), inclusiveEnd(now))
}

// StatsByDate counts the events of one UTC day per event type.
func (l *EventLogger) StatsByDate(ctx context.Context, date time.Time) (map[string]int, error) {
	start, end := model.DayBounds(date)
	return l.Repo.CountByType(ctx, start, end)
}

// CountSince counts events per type in the window [now-window, now].
func (l *EventLogger) CountSince(ctx context.Context, now time.Time, window time.Duration) (map[string]int, error) {
	return l.Repo.CountByType(ctx, now.Add(-window), inclusiveEnd(now))
}

// Cleanup purges events older than olderThanDays and returns how many were removed.
func (l *EventLogger) Cleanup(ctx context.Context, now time.Time, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("olderThanDays must be at least 1")
	}
	n, err := l.Repo.DeleteBefore(ctx, now.AddDate(0, 0, -olderThanDays))
	if err != nil {
		return 0, fmt.Errorf("cleanup events: %w", err)
	}
	l.Log.WithFields(logrus.Fields{"removed": n, "older_than_days": olderThanDays}).Info("pipeline events purged")
	return n, nil
}

// inclusiveEnd turns now into an exclusive upper bound that still covers
// events stamped exactly at now.
func inclusiveEnd(now time.Time) time.Time {
	return now.Add(time.Nanosecond)
}
