// internal/repository/event_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/unclebandit/content-pipeline/internal/model"
)

// EventRepositoryInterface is the append-only pipeline event log.
type EventRepositoryInterface interface {
	Append(ctx context.Context, e *model.PipelineEvent) error
	// Between returns events with from <= occurred_at < to, oldest first.
	Between(ctx context.Context, from, to time.Time) ([]*model.PipelineEvent, error)
	// CountByType groups events with from <= occurred_at < to by event type.
	CountByType(ctx context.Context, from, to time.Time) (map[string]int, error)
	// DeleteBefore purges events older than cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const pipelineEventsTable = "pipeline_events"

var pipelineEventColumns = []string{
	"id", "event_type", "subject_id", "occurred_at", "title", "description", "metadata", "error_message",
}

type EventRepository struct {
	DB *sql.DB
}

func (r *EventRepository) Append(ctx context.Context, e *model.PipelineEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query, args, err := psql.Insert(pipelineEventsTable).
		Columns(pipelineEventColumns...).
		Values(e.ID, e.EventType, e.SubjectID, e.OccurredAt, e.Title, e.Description, data, e.ErrorMessage).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r *EventRepository) Between(ctx context.Context, from, to time.Time) ([]*model.PipelineEvent, error) {
	query, args, err := psql.Select(pipelineEventColumns...).
		From(pipelineEventsTable).
		Where(sq.GtOrEq{"occurred_at": from}).
		Where(sq.Lt{"occurred_at": to}).
		OrderBy("occurred_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.PipelineEvent{}
	for rows.Next() {
		var (
			e         model.PipelineEvent
			subjectID uuid.NullUUID
			metadata  []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &subjectID, &e.OccurredAt, &e.Title,
			&e.Description, &metadata, &e.ErrorMessage); err != nil {
			return nil, err
		}
		if subjectID.Valid {
			id := subjectID.UUID
			e.SubjectID = &id
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *EventRepository) CountByType(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query, args, err := psql.Select("event_type", "COUNT(*)").
		From(pipelineEventsTable).
		Where(sq.GtOrEq{"occurred_at": from}).
		Where(sq.Lt{"occurred_at": to}).
		GroupBy("event_type").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete(pipelineEventsTable).
		Where(sq.Lt{"occurred_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
