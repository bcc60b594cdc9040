package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/service"
)

func TestRunDispatchTick_MixedOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scheduled := tickTime.Add(-time.Hour)
	a := f.seedApproved(t, model.PlatformInstagram, tickTime.Add(-3*time.Hour), &scheduled)
	b := f.seedApproved(t, model.PlatformLinkedIn, tickTime.Add(-2*time.Hour), nil)
	require.Equal(t, model.StatusScheduled, a.Status)
	require.Equal(t, model.StatusApproved, b.Status)

	f.publishWith(model.PlatformInstagram, func(context.Context, *model.ContentItem) (string, error) {
		return "", &appErrors.PublishError{Platform: "instagram", StatusCode: 429, Message: "rate limit exceeded"}
	})
	f.publishWith(model.PlatformLinkedIn, func(context.Context, *model.ContentItem) (string, error) {
		return "li_123", nil
	})

	result, err := f.dispatcher.RunDispatchTick(ctx, tickTime)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Due)
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 1, result.Failed)

	gotA := f.get(t, a.ID)
	assert.Equal(t, model.StatusFailed, gotA.Status)
	assert.Contains(t, gotA.LastError, "rate limit")
	assert.Nil(t, gotA.PublishedAt)

	gotB := f.get(t, b.ID)
	assert.Equal(t, model.StatusPublished, gotB.Status)
	assert.Equal(t, "li_123", gotB.ExternalRef)
	require.NotNil(t, gotB.PublishedAt)
	assert.True(t, gotB.PublishedAt.Equal(tickTime))

	assert.ElementsMatch(t, []string{"instagram_failed", "linkedin_published"}, f.eventTypes())
}

func TestRunDispatchTick_EmptyTickWritesNothing(t *testing.T) {
	f := newFixture(t)
	future := tickTime.Add(time.Hour)
	f.seedApproved(t, model.PlatformBlog, tickTime.Add(-time.Hour), &future)
	writesBefore := f.store.writes.Load()

	result, err := f.dispatcher.RunDispatchTick(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)
	assert.Empty(t, result.Outcomes)
	assert.Equal(t, writesBefore, f.store.writes.Load())
	assert.Empty(t, f.events.All())
}

func TestRunDispatchTick_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	d := service.NewDispatcher(brokenStore{}, f.publishers, f.logger, nil, nullLogger(), time.Second)

	_, err := d.RunDispatchTick(context.Background(), tickTime)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, f.events.All())
}

func TestRunDispatchTick_PanickingAdapterIsIsolated(t *testing.T) {
	f := newFixture(t)
	first := f.seedApproved(t, model.PlatformBlog, tickTime.Add(-2*time.Hour), nil)
	second := f.seedApproved(t, model.PlatformBlog, tickTime.Add(-time.Hour), nil)

	f.publishWith(model.PlatformBlog, func(_ context.Context, item *model.ContentItem) (string, error) {
		if item.ID == first.ID {
			panic("adapter bug")
		}
		return "blog-2", nil
	})

	result, err := f.dispatcher.RunDispatchTick(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Published)

	assert.Equal(t, model.StatusFailed, f.get(t, first.ID).Status)
	assert.Contains(t, f.get(t, first.ID).LastError, "adapter bug")
	assert.Equal(t, model.StatusPublished, f.get(t, second.ID).Status)
}

func TestRunDispatchTick_MissingAdapterFailsItem(t *testing.T) {
	f := newFixture(t)
	item := f.seedApproved(t, model.PlatformInstagram, tickTime.Add(-time.Hour), nil)

	result, err := f.dispatcher.RunDispatchTick(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, model.StatusFailed, f.get(t, item.ID).Status)
}

func TestRunDispatchTick_AdapterTimeoutBoundsAttempt(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.PublishTimeout = 20 * time.Millisecond
	item := f.seedApproved(t, model.PlatformLinkedIn, tickTime.Add(-time.Hour), nil)

	f.publishWith(model.PlatformLinkedIn, func(ctx context.Context, _ *model.ContentItem) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	result, err := f.dispatcher.RunDispatchTick(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, model.StatusFailed, f.get(t, item.ID).Status)
}

func TestRunDispatchTick_CallerCancelDoesNotAbortClaimedItem(t *testing.T) {
	f := newFixture(t)
	item := f.seedApproved(t, model.PlatformLinkedIn, tickTime.Add(-time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.publishWith(model.PlatformLinkedIn, func(pctx context.Context, _ *model.ContentItem) (string, error) {
		cancel()
		if err := pctx.Err(); err != nil {
			return "", err
		}
		return "li_9", nil
	})

	_, err := f.dispatcher.RunDispatchTick(ctx, tickTime)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, f.get(t, item.ID).Status)
}

func TestRunDispatchTick_OverlappingTicksPublishOnce(t *testing.T) {
	f := newFixture(t)
	item := f.seedApproved(t, model.PlatformBlog, tickTime.Add(-time.Hour), nil)

	var calls atomic.Int32
	f.publishWith(model.PlatformBlog, func(context.Context, *model.ContentItem) (string, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return "blog-1", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.dispatcher.RunDispatchTick(context.Background(), tickTime)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, model.StatusPublished, f.get(t, item.ID).Status)
	assert.Equal(t, []string{"blog_published"}, f.eventTypes())
}

func TestResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.seedApproved(t, model.PlatformInstagram, tickTime.Add(-time.Hour), nil)

	fail := true
	f.publishWith(model.PlatformInstagram, func(context.Context, *model.ContentItem) (string, error) {
		if fail {
			return "", &appErrors.PublishError{Platform: "instagram", Message: "token expired"}
		}
		return "ig_7", nil
	})

	_, err := f.dispatcher.RunDispatchTick(ctx, tickTime)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, f.get(t, item.ID).Status)

	// A later tick never retries a failed item.
	result, err := f.dispatcher.RunDispatchTick(ctx, tickTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)

	fail = false
	out, err := f.dispatcher.Resubmit(ctx, item.ID, tickTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, service.OutcomePublished, out.Status)
	assert.Equal(t, "ig_7", f.get(t, item.ID).ExternalRef)

	_, err = f.dispatcher.Resubmit(ctx, item.ID, tickTime.Add(3*time.Hour))
	assert.True(t, appErrors.IsInvalidTransition(err))
}

// unwritableStore accepts claims but cannot record publish results.
type unwritableStore struct {
	*countingStore
}

func (unwritableStore) MarkPublished(context.Context, uuid.UUID, string, time.Time) (*model.ContentItem, error) {
	return nil, errStoreDown
}

func (unwritableStore) MarkFailed(context.Context, uuid.UUID, string, time.Time) (*model.ContentItem, error) {
	return nil, errStoreDown
}

func TestRunDispatchTick_MetricsFollowRecordedOutcome(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	d := service.NewDispatcher(unwritableStore{f.store}, f.publishers, f.logger, m, nullLogger(), time.Second)

	f.seedApproved(t, model.PlatformLinkedIn, tickTime.Add(-time.Hour), nil)
	f.seedApproved(t, model.PlatformInstagram, tickTime.Add(-time.Hour), nil)
	f.publishWith(model.PlatformLinkedIn, func(context.Context, *model.ContentItem) (string, error) {
		return "li_1", nil
	})
	f.publishWith(model.PlatformInstagram, func(context.Context, *model.ContentItem) (string, error) {
		return "", &appErrors.PublishError{Platform: "instagram", Message: "bad media"}
	})

	result, err := d.RunDispatchTick(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Unrecorded)
	assert.Zero(t, result.Published)
	assert.Zero(t, result.Failed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `content_pipeline_dispatch_outcomes_total{outcome="unrecorded",platform="linkedin"} 1`)
	assert.Contains(t, body, `content_pipeline_dispatch_outcomes_total{outcome="unrecorded",platform="instagram"} 1`)
	assert.NotContains(t, body, `outcome="published"`)
	assert.NotContains(t, body, `outcome="failed"`)
}
