package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/publisher"
	"github.com/unclebandit/content-pipeline/internal/repository"
	"github.com/unclebandit/content-pipeline/internal/service"
)

var tickTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// countingStore counts every write that reaches the store.
type countingStore struct {
	repository.ContentItemRepositoryInterface
	writes atomic.Int32
}

func (c *countingStore) Create(ctx context.Context, item *model.ContentItem) error {
	c.writes.Add(1)
	return c.ContentItemRepositoryInterface.Create(ctx, item)
}

func (c *countingStore) ClaimPublishing(ctx context.Context, id uuid.UUID, expected model.Status, now time.Time) (bool, error) {
	c.writes.Add(1)
	return c.ContentItemRepositoryInterface.ClaimPublishing(ctx, id, expected, now)
}

func (c *countingStore) MarkPublished(ctx context.Context, id uuid.UUID, ref string, now time.Time) (*model.ContentItem, error) {
	c.writes.Add(1)
	return c.ContentItemRepositoryInterface.MarkPublished(ctx, id, ref, now)
}

func (c *countingStore) MarkFailed(ctx context.Context, id uuid.UUID, msg string, now time.Time) (*model.ContentItem, error) {
	c.writes.Add(1)
	return c.ContentItemRepositoryInterface.MarkFailed(ctx, id, msg, now)
}

// brokenStore fails every query, as an unreachable database would.
type brokenStore struct {
	repository.ContentItemRepositoryInterface
}

var errStoreDown = errors.New("connection refused")

func (brokenStore) ListDue(context.Context, time.Time) ([]*model.ContentItem, error) {
	return nil, errStoreDown
}

func (brokenStore) CountCreatedSince(context.Context, model.Platform, time.Time) (int, error) {
	return 0, errStoreDown
}

// brokenEvents fails every read and write.
type brokenEvents struct{}

func (brokenEvents) Append(context.Context, *model.PipelineEvent) error { return errStoreDown }
func (brokenEvents) Between(context.Context, time.Time, time.Time) ([]*model.PipelineEvent, error) {
	return nil, errStoreDown
}
func (brokenEvents) CountByType(context.Context, time.Time, time.Time) (map[string]int, error) {
	return nil, errStoreDown
}
func (brokenEvents) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, errStoreDown }

type fixture struct {
	store      *countingStore
	events     *repository.MemoryEventRepository
	logger     *service.EventLogger
	publishers *publisher.Registry
	dispatcher *service.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      &countingStore{ContentItemRepositoryInterface: repository.NewMemoryContentItemRepository()},
		events:     repository.NewMemoryEventRepository(),
		publishers: publisher.NewRegistry(),
	}
	f.logger = service.NewEventLogger(f.events, nullLogger(), time.Second)
	f.dispatcher = service.NewDispatcher(f.store, f.publishers, f.logger, nil, nullLogger(), time.Second)
	return f
}

func (f *fixture) publishWith(platform model.Platform, fn func(ctx context.Context, item *model.ContentItem) (string, error)) {
	f.publishers.Register(publisher.Func{For: platform, Fn: fn})
}

// seedApproved creates an item and approves it at approvedAt, scheduled for
// scheduledFor when given.
func (f *fixture) seedApproved(t *testing.T, platform model.Platform, approvedAt time.Time, scheduledFor *time.Time) *model.ContentItem {
	t.Helper()
	ctx := context.Background()
	item := &model.ContentItem{
		Platform:  platform,
		Status:    model.StatusPendingReview,
		Payload:   model.Payload{Title: string(platform) + " post", Caption: "caption"},
		CreatedAt: approvedAt.Add(-time.Hour),
	}
	require.NoError(t, f.store.ContentItemRepositoryInterface.Create(ctx, item))
	approved, err := f.store.Approve(ctx, item.ID, scheduledFor, approvedAt)
	require.NoError(t, err)
	return approved
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *model.ContentItem {
	t.Helper()
	item, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, e := range f.events.All() {
		types = append(types, e.EventType)
	}
	return types
}
