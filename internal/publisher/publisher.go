// internal/publisher/publisher.go
package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/unclebandit/content-pipeline/internal/model"
)

// Publisher sends one content item to its remote platform and returns the
// platform's external id. Implementations must honor ctx and must not retry.
type Publisher interface {
	Platform() model.Platform
	Publish(ctx context.Context, item *model.ContentItem) (string, error)
}

// Func adapts a function to the Publisher interface.
type Func struct {
	For model.Platform
	Fn  func(ctx context.Context, item *model.ContentItem) (string, error)
}

func (f Func) Platform() model.Platform { return f.For }

func (f Func) Publish(ctx context.Context, item *model.ContentItem) (string, error) {
	return f.Fn(ctx, item)
}

// Registry maps platforms to their adapter.
type Registry struct {
	mu         sync.RWMutex
	publishers map[model.Platform]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[model.Platform]Publisher)}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

func (r *Registry) Get(platform model.Platform) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", platform)
	}
	return p, nil
}
