// internal/repository/memory_content_item_repository.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/model"
)

// MemoryContentItemRepository is a mutex-guarded store satisfying the same
// compare-and-set contract as the Postgres repository. Callers always get
// clones, never the stored pointers.
type MemoryContentItemRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.ContentItem
}

func NewMemoryContentItemRepository() *MemoryContentItemRepository {
	return &MemoryContentItemRepository{items: make(map[uuid.UUID]*model.ContentItem)}
}

func (r *MemoryContentItemRepository) Create(_ context.Context, c *model.ContentItem) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[c.ID]; exists {
		return appErrors.Validation("content item %s already exists", c.ID)
	}
	r.items[c.ID] = c.Clone()
	return nil
}

func (r *MemoryContentItemRepository) GetByID(_ context.Context, id uuid.UUID) (*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, appErrors.NewContentItemNotFound(id)
	}
	return c.Clone(), nil
}

func (r *MemoryContentItemRepository) List(_ context.Context, filter model.ListFilter, offset, limit int) ([]*model.ContentItem, int, error) {
	r.mu.Lock()
	var matched []*model.ContentItem
	for _, c := range r.items {
		if filter.Platform != "" && c.Platform != filter.Platform {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		matched = append(matched, c.Clone())
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	total := len(matched)
	if offset >= total {
		return []*model.ContentItem{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryContentItemRepository) ListDue(_ context.Context, now time.Time) ([]*model.ContentItem, error) {
	r.mu.Lock()
	due := []*model.ContentItem{}
	for _, c := range r.items {
		if c.IsDue(now) {
			due = append(due, c.Clone())
		}
	}
	r.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(*due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(*due[j].ScheduledFor)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due, nil
}

func (r *MemoryContentItemRepository) CountCreatedSince(_ context.Context, platform model.Platform, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.items {
		if c.Platform == platform && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// transition applies mutate under the lock when the lifecycle allows the
// current status to move to to.
func (r *MemoryContentItemRepository) transition(id uuid.UUID, to model.Status, now time.Time, mutate func(*model.ContentItem)) (*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return nil, appErrors.NewContentItemNotFound(id)
	}
	if !model.CanTransition(c.Status, to) {
		return nil, appErrors.NewInvalidTransition(id, string(c.Status), string(to))
	}

	c.Status = to
	c.UpdatedAt = now
	if mutate != nil {
		mutate(c)
	}
	return c.Clone(), nil
}

func (r *MemoryContentItemRepository) SubmitForReview(_ context.Context, id uuid.UUID, now time.Time) (*model.ContentItem, error) {
	return r.transition(id, model.StatusPendingReview, now, nil)
}

func (r *MemoryContentItemRepository) Approve(_ context.Context, id uuid.UUID, scheduledFor *time.Time, now time.Time) (*model.ContentItem, error) {
	to := model.StatusApproved
	at := now
	if scheduledFor != nil {
		to = model.StatusScheduled
		at = *scheduledFor
	}
	return r.transition(id, to, now, func(c *model.ContentItem) {
		c.ScheduledFor = &at
	})
}

func (r *MemoryContentItemRepository) Reject(_ context.Context, id uuid.UUID, reason string, now time.Time) (*model.ContentItem, error) {
	return r.transition(id, model.StatusRejected, now, func(c *model.ContentItem) {
		c.ReviewNote = reason
	})
}

func (r *MemoryContentItemRepository) UpdatePayload(_ context.Context, id uuid.UUID, payload model.Payload, now time.Time) (*model.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return nil, appErrors.NewContentItemNotFound(id)
	}
	if !c.Status.PayloadMutable() {
		return nil, appErrors.NewPayloadLocked(id, string(c.Status))
	}
	c.Payload = payload
	c.UpdatedAt = now
	// Detach the stored slices from the caller's payload.
	stored := c.Clone()
	r.items[id] = stored
	return stored.Clone(), nil
}

func (r *MemoryContentItemRepository) ClaimPublishing(_ context.Context, id uuid.UUID, expected model.Status, now time.Time) (bool, error) {
	if !expected.IsClaimable() {
		return false, appErrors.Validation("status %q cannot be claimed for publishing", expected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok || c.Status != expected {
		return false, nil
	}
	if expected != model.StatusFailed && (c.ScheduledFor == nil || c.ScheduledFor.After(now)) {
		return false, nil
	}
	c.Status = model.StatusPublishing
	c.UpdatedAt = now
	return true, nil
}

func (r *MemoryContentItemRepository) MarkPublished(_ context.Context, id uuid.UUID, externalRef string, now time.Time) (*model.ContentItem, error) {
	return r.transition(id, model.StatusPublished, now, func(c *model.ContentItem) {
		at := now
		c.PublishedAt = &at
		c.ExternalRef = externalRef
		c.LastError = ""
	})
}

func (r *MemoryContentItemRepository) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, now time.Time) (*model.ContentItem, error) {
	return r.transition(id, model.StatusFailed, now, func(c *model.ContentItem) {
		c.LastError = errMsg
	})
}
