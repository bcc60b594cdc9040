// internal/repository/memory_event_repository.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/content-pipeline/internal/model"
)

type MemoryEventRepository struct {
	mu     sync.Mutex
	events []*model.PipelineEvent
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{}
}

func (r *MemoryEventRepository) Append(_ context.Context, e *model.PipelineEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	cp := *e
	r.mu.Lock()
	r.events = append(r.events, &cp)
	r.mu.Unlock()
	return nil
}

func (r *MemoryEventRepository) Between(_ context.Context, from, to time.Time) ([]*model.PipelineEvent, error) {
	r.mu.Lock()
	out := []*model.PipelineEvent{}
	for _, e := range r.events {
		if !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			cp := *e
			out = append(out, &cp)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *MemoryEventRepository) CountByType(_ context.Context, from, to time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, e := range r.events {
		if !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			counts[e.EventType]++
		}
	}
	return counts, nil
}

func (r *MemoryEventRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var removed int64
	for _, e := range r.events {
		if e.OccurredAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return removed, nil
}

// All returns every stored event, oldest first.
func (r *MemoryEventRepository) All() []*model.PipelineEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PipelineEvent, len(r.events))
	for i, e := range r.events {
		cp := *e
		out[i] = &cp
	}
	return out
}
