package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/model"
)

func seedPending(t *testing.T, repo *MemoryContentItemRepository, platform model.Platform, created time.Time) *model.ContentItem {
	t.Helper()
	item := &model.ContentItem{
		Platform:  platform,
		Status:    model.StatusPendingReview,
		Payload:   model.Payload{Title: "Post"},
		CreatedAt: created,
	}
	require.NoError(t, repo.Create(context.Background(), item))
	return item
}

func TestMemoryRepo_ConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryContentItemRepository()
	item := seedPending(t, repo, model.PlatformBlog, now.Add(-time.Hour))
	_, err := repo.Approve(ctx, item.ID, nil, now.Add(-time.Minute))
	require.NoError(t, err)

	const racers = 32
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := repo.ClaimPublishing(ctx, item.ID, model.StatusApproved, now)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublishing, got.Status)
}

func TestMemoryRepo_ClaimRespectsDueBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryContentItemRepository()

	future := now.Add(time.Second)
	later := seedPending(t, repo, model.PlatformInstagram, now)
	_, err := repo.Approve(ctx, later.ID, &future, now)
	require.NoError(t, err)

	exact := seedPending(t, repo, model.PlatformInstagram, now)
	_, err = repo.Approve(ctx, exact.ID, &now, now)
	require.NoError(t, err)

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, exact.ID, due[0].ID)

	ok, err := repo.ClaimPublishing(ctx, later.ID, model.StatusScheduled, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ClaimPublishing(ctx, exact.ID, model.StatusScheduled, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ClaimPublishing(ctx, exact.ID, model.StatusScheduled, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRepo_ListDueOrdersByScheduledFor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryContentItemRepository()

	var ids []uuid.UUID
	for _, offset := range []time.Duration{-time.Minute, -3 * time.Hour, -time.Hour} {
		at := now.Add(offset)
		item := seedPending(t, repo, model.PlatformLinkedIn, now.Add(-4*time.Hour))
		_, err := repo.Approve(ctx, item.ID, &at, now)
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []uuid.UUID{ids[1], ids[2], ids[0]}, []uuid.UUID{due[0].ID, due[1].ID, due[2].ID})
}

func TestMemoryRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryContentItemRepository()

	draft := &model.ContentItem{Platform: model.PlatformBlog, Payload: model.Payload{Title: "Draft"}}
	require.NoError(t, repo.Create(ctx, draft))
	assert.Equal(t, model.StatusDraft, draft.Status)

	_, err := repo.Approve(ctx, draft.ID, nil, now)
	assert.True(t, appErrors.IsInvalidTransition(err), "draft cannot skip review")

	_, err = repo.SubmitForReview(ctx, draft.ID, now)
	require.NoError(t, err)

	approved, err := repo.Approve(ctx, draft.ID, nil, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.ScheduledFor)
	assert.Equal(t, now, *approved.ScheduledFor)

	_, err = repo.MarkPublished(ctx, draft.ID, "x", now)
	assert.True(t, appErrors.IsInvalidTransition(err), "must be claimed first")

	ok, err := repo.ClaimPublishing(ctx, draft.ID, model.StatusApproved, now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.UpdatePayload(ctx, draft.ID, model.Payload{Title: "late edit"}, now)
	assert.True(t, appErrors.IsPayloadLocked(err))

	failed, err := repo.MarkFailed(ctx, draft.ID, "timeout", now)
	require.NoError(t, err)
	assert.Equal(t, "timeout", failed.LastError)
	assert.Nil(t, failed.PublishedAt)

	ok, err = repo.ClaimPublishing(ctx, draft.ID, model.StatusFailed, now)
	require.NoError(t, err)
	require.True(t, ok)

	published, err := repo.MarkPublished(ctx, draft.ID, "blog-42", now)
	require.NoError(t, err)
	assert.Equal(t, "blog-42", published.ExternalRef)
	assert.Empty(t, published.LastError)
	require.NotNil(t, published.PublishedAt)

	_, err = repo.MarkFailed(ctx, draft.ID, "again", now)
	assert.True(t, appErrors.IsInvalidTransition(err), "published is terminal")
}

func TestMemoryRepo_RejectStoresReason(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	repo := NewMemoryContentItemRepository()
	item := seedPending(t, repo, model.PlatformBlog, now)

	rejected, err := repo.Reject(ctx, item.ID, "off brand", now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Equal(t, "off brand", rejected.ReviewNote)

	_, err = repo.Approve(ctx, item.ID, nil, now)
	assert.True(t, appErrors.IsInvalidTransition(err))
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryContentItemRepository()
	item := seedPending(t, repo, model.PlatformBlog, time.Now())

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	got.Status = model.StatusPublished

	again, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, again.Status)
}

func TestMemoryRepo_ListAndCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryContentItemRepository()

	for i := 0; i < 5; i++ {
		seedPending(t, repo, model.PlatformBlog, now.Add(-time.Duration(i)*24*time.Hour))
	}
	seedPending(t, repo, model.PlatformInstagram, now)

	items, total, err := repo.List(ctx, model.ListFilter{Platform: model.PlatformBlog}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	items, _, err = repo.List(ctx, model.ListFilter{}, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	n, err := repo.CountCreatedSince(ctx, model.PlatformBlog, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryEventRepo(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryEventRepository()

	for _, e := range []struct {
		typ string
		at  time.Time
	}{
		{"blog_published", day.Add(time.Hour)},
		{"blog_published", day.Add(2 * time.Hour)},
		{"instagram_failed", day.Add(3 * time.Hour)},
		{"blog_published", day.Add(-time.Hour)},
		{"blog_published", day.Add(24 * time.Hour)},
	} {
		require.NoError(t, repo.Append(ctx, &model.PipelineEvent{EventType: e.typ, OccurredAt: e.at}))
	}

	counts, err := repo.CountByType(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"blog_published": 2, "instagram_failed": 1}, counts)

	events, err := repo.Between(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, events, 3)

	removed, err := repo.DeleteBefore(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, repo.All(), 4)
}

func TestMemoryRepo_GuardsFollowLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	ops := []struct {
		to  model.Status
		run func(repo *MemoryContentItemRepository, id uuid.UUID) error
	}{
		{model.StatusPendingReview, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.SubmitForReview(ctx, id, now)
			return err
		}},
		{model.StatusApproved, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.Approve(ctx, id, nil, now)
			return err
		}},
		{model.StatusScheduled, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.Approve(ctx, id, &later, now)
			return err
		}},
		{model.StatusRejected, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.Reject(ctx, id, "no", now)
			return err
		}},
		{model.StatusPublished, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.MarkPublished(ctx, id, "ref", now)
			return err
		}},
		{model.StatusFailed, func(repo *MemoryContentItemRepository, id uuid.UUID) error {
			_, err := repo.MarkFailed(ctx, id, "boom", now)
			return err
		}},
	}

	for _, from := range model.Statuses {
		for _, op := range ops {
			t.Run(string(from)+"->"+string(op.to), func(t *testing.T) {
				repo := NewMemoryContentItemRepository()
				item := &model.ContentItem{Platform: model.PlatformBlog, Status: from, ScheduledFor: &past, CreatedAt: past}
				require.NoError(t, repo.Create(ctx, item))

				err := op.run(repo, item.ID)
				if model.CanTransition(from, op.to) {
					require.NoError(t, err)
					got, err := repo.GetByID(ctx, item.ID)
					require.NoError(t, err)
					assert.Equal(t, op.to, got.Status)
				} else {
					assert.True(t, appErrors.IsInvalidTransition(err), "got %v", err)
				}
			})
		}

		t.Run(string(from)+"->publishing", func(t *testing.T) {
			repo := NewMemoryContentItemRepository()
			item := &model.ContentItem{Platform: model.PlatformBlog, Status: from, ScheduledFor: &past, CreatedAt: past}
			require.NoError(t, repo.Create(ctx, item))

			ok, err := repo.ClaimPublishing(ctx, item.ID, from, now)
			assert.Equal(t, model.CanTransition(from, model.StatusPublishing), ok && err == nil)
		})
	}
}
