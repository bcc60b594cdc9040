package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/content-pipeline/internal/model"
)

func TestEventRepository_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	subject := uuid.New()
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pipeline_events (id,event_type,subject_id,occurred_at")).
		WithArgs(sqlmock.AnyArg(), "linkedin_published", subject.String(), at, "Published to linkedin", "",
			[]byte(`{"external_ref":"li_123"}`), "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := &EventRepository{DB: db}
	err = repo.Append(context.Background(), &model.PipelineEvent{
		EventType:  "linkedin_published",
		SubjectID:  &subject,
		OccurredAt: at,
		Title:      "Published to linkedin",
		Metadata:   map[string]any{"external_ref": "li_123"},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_CountByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, COUNT(*) FROM pipeline_events WHERE occurred_at >= $1 AND occurred_at < $2 GROUP BY event_type")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("blog_published", 4).
			AddRow("instagram_failed", 1))

	repo := &EventRepository{DB: db}
	counts, err := repo.CountByType(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"blog_published": 4, "instagram_failed": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_Between(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_events WHERE occurred_at >= $1 AND occurred_at < $2 ORDER BY occurred_at ASC")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(pipelineEventColumns).
			AddRow(id.String(), "instagram_failed", nil, from.Add(time.Hour), "Publish failed", "",
				[]byte(`{"platform":"instagram"}`), "rate limited"))

	repo := &EventRepository{DB: db}
	events, err := repo.Between(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].SubjectID)
	assert.Equal(t, "rate limited", events[0].ErrorMessage)
	assert.Equal(t, "instagram", events[0].Metadata["platform"])
}

func TestEventRepository_DeleteBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pipeline_events WHERE occurred_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	repo := &EventRepository{DB: db}
	n, err := repo.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
