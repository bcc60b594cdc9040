// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/publisher"
	"github.com/unclebandit/content-pipeline/internal/repository"
)

const defaultPublishTimeout = 30 * time.Second

// OutcomeStatus is what happened to one due item during a tick.
type OutcomeStatus string

const (
	OutcomePublished OutcomeStatus = "published"
	OutcomeFailed    OutcomeStatus = "failed"
	// OutcomeSkipped means the claim was lost or no longer held.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeUnrecorded means the publish result could not be written back.
	OutcomeUnrecorded OutcomeStatus = "unrecorded"
)

type Outcome struct {
	ItemID      uuid.UUID      `json:"item_id"`
	Platform    model.Platform `json:"platform"`
	Status      OutcomeStatus  `json:"status"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type TickResult struct {
	Now        time.Time `json:"now"`
	Due        int       `json:"due"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Unrecorded int       `json:"unrecorded"`
	Outcomes   []Outcome `json:"outcomes"`
}

// PublisherLookup resolves the adapter for a platform.
type PublisherLookup interface {
	Get(platform model.Platform) (publisher.Publisher, error)
}

// ArticlePromoter fans a freshly published blog item out to social platforms.
type ArticlePromoter interface {
	PromoteArticle(ctx context.Context, article *model.ContentItem, now time.Time) []PromotionOutcome
}

// Dispatcher claims due items and hands them to their publisher adapter.
// Claims are the only concurrency control: overlapping ticks are safe.
type Dispatcher struct {
	Store          repository.ContentItemRepositoryInterface
	Publishers     PublisherLookup
	Events         *EventLogger
	Promoter       ArticlePromoter
	Metrics        *metrics.Collector
	Log            logrus.FieldLogger
	PublishTimeout time.Duration
}

func NewDispatcher(store repository.ContentItemRepositoryInterface, publishers PublisherLookup, events *EventLogger,
	m *metrics.Collector, log logrus.FieldLogger, publishTimeout time.Duration) *Dispatcher {
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &Dispatcher{
		Store:          store,
		Publishers:     publishers,
		Events:         events,
		Metrics:        m,
		Log:            log.WithField("component", "dispatcher"),
		PublishTimeout: publishTimeout,
	}
}

// RunDispatchTick publishes every item due at now. Platforms are processed
// concurrently, items within a platform in scheduled order. Only a failure to
// list due items is returned; per-item failures end up in the outcomes.
func (d *Dispatcher) RunDispatchTick(ctx context.Context, now time.Time) (*TickResult, error) {
	due, err := d.Store.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due items: %w", err)
	}

	result := &TickResult{Now: now, Due: len(due), Outcomes: []Outcome{}}
	if len(due) == 0 {
		return result, nil
	}

	partitions := make(map[model.Platform][]*model.ContentItem)
	for _, item := range due {
		partitions[item.Platform] = append(partitions[item.Platform], item)
	}

	var mu sync.Mutex
	perPlatform := make(map[model.Platform][]Outcome, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	for platform, items := range partitions {
		platform, items := platform, items
		g.Go(func() error {
			outcomes := make([]Outcome, 0, len(items))
			for _, item := range items {
				outcomes = append(outcomes, d.PublishNow(gctx, item, item.Status, now))
			}
			mu.Lock()
			perPlatform[platform] = outcomes
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, platform := range model.Platforms {
		for _, o := range perPlatform[platform] {
			switch o.Status {
			case OutcomePublished:
				result.Published++
			case OutcomeFailed:
				result.Failed++
			case OutcomeUnrecorded:
				result.Unrecorded++
			default:
				result.Skipped++
			}
			result.Outcomes = append(result.Outcomes, o)
		}
	}

	d.Log.WithFields(logrus.Fields{
		"now":        now,
		"due":        result.Due,
		"published":  result.Published,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"unrecorded": result.Unrecorded,
	}).Info("dispatch tick finished")
	return result, nil
}

// PublishNow claims item from expected and runs exactly one publish attempt.
// It never panics and never returns an error; everything is in the Outcome.
func (d *Dispatcher) PublishNow(ctx context.Context, item *model.ContentItem, expected model.Status, now time.Time) (out Outcome) {
	out = Outcome{ItemID: item.ID, Platform: item.Platform}
	log := d.Log.WithFields(logrus.Fields{"item_id": item.ID, "platform": item.Platform})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("item processing panicked: %v", r)
			if out.Status == "" {
				out.Status = OutcomeSkipped
			}
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	claimed, err := d.Store.ClaimPublishing(ctx, item.ID, expected, now)
	if err != nil {
		log.WithError(err).Warn("claim failed")
		out.Status = OutcomeSkipped
		out.Error = err.Error()
		return out
	}
	if !claimed {
		d.Metrics.ClaimLost(string(item.Platform))
		out.Status = OutcomeSkipped
		return out
	}

	// Once claimed, the attempt runs to completion regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	ref, pubErr := d.invoke(ctx, item)
	if pubErr != nil {
		return d.recordFailure(ctx, log, item, pubErr, now)
	}
	return d.recordSuccess(ctx, log, item, ref, now)
}

// invoke calls the adapter under the publish timeout, converting panics to errors.
func (d *Dispatcher) invoke(ctx context.Context, item *model.ContentItem) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()

	p, err := d.Publishers.Get(item.Platform)
	if err != nil {
		return "", err
	}

	pctx, cancel := context.WithTimeout(ctx, d.PublishTimeout)
	defer cancel()

	start := time.Now()
	ref, err = p.Publish(pctx, item)
	d.Metrics.ObservePublish(string(item.Platform), time.Since(start))
	return ref, err
}

func (d *Dispatcher) recordFailure(ctx context.Context, log logrus.FieldLogger, item *model.ContentItem, pubErr error, now time.Time) Outcome {
	out := Outcome{ItemID: item.ID, Platform: item.Platform, Status: OutcomeFailed, Error: pubErr.Error()}
	log.WithError(pubErr).Warn("publish failed")

	if _, err := d.Store.MarkFailed(ctx, item.ID, pubErr.Error(), now); err != nil {
		log.WithError(err).Error("failed to record publish failure")
		out.Status = OutcomeUnrecorded
	}
	d.Metrics.DispatchOutcome(string(item.Platform), string(out.Status))

	d.Events.Append(ctx, &model.PipelineEvent{
		EventType:    model.FailedEvent(item.Platform),
		SubjectID:    &item.ID,
		OccurredAt:   now,
		Title:        fmt.Sprintf("Publishing to %s failed", item.Platform),
		Description:  itemTitle(item),
		Metadata:     map[string]any{"platform": string(item.Platform)},
		ErrorMessage: pubErr.Error(),
	})
	return out
}

func (d *Dispatcher) recordSuccess(ctx context.Context, log logrus.FieldLogger, item *model.ContentItem, ref string, now time.Time) Outcome {
	out := Outcome{ItemID: item.ID, Platform: item.Platform, Status: OutcomePublished, ExternalRef: ref}

	published, err := d.Store.MarkPublished(ctx, item.ID, ref, now)
	if err != nil {
		// The remote post exists but the item stays in publishing.
		log.WithError(err).WithField("external_ref", ref).Error("failed to record publish success")
		out.Status = OutcomeUnrecorded
		out.Error = err.Error()
	}
	d.Metrics.DispatchOutcome(string(item.Platform), string(out.Status))

	d.Events.Append(ctx, &model.PipelineEvent{
		EventType:   model.PublishedEvent(item.Platform),
		SubjectID:   &item.ID,
		OccurredAt:  now,
		Title:       fmt.Sprintf("Published to %s", item.Platform),
		Description: itemTitle(item),
		Metadata:    map[string]any{"platform": string(item.Platform), "external_ref": ref},
	})

	if published != nil && published.Platform == model.PlatformBlog && d.Promoter != nil {
		d.Promoter.PromoteArticle(ctx, published, now)
	}
	return out
}

// Resubmit manually retries a failed item with one immediate publish attempt.
func (d *Dispatcher) Resubmit(ctx context.Context, id uuid.UUID, now time.Time) (*Outcome, error) {
	item, err := d.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusFailed {
		return nil, appErrors.NewInvalidTransition(id, string(item.Status), string(model.StatusPublishing))
	}

	out := d.PublishNow(ctx, item, model.StatusFailed, now)
	if out.Status == OutcomeSkipped {
		return nil, appErrors.NewInvalidTransition(id, string(model.StatusFailed), string(model.StatusPublishing))
	}
	return &out, nil
}

func itemTitle(item *model.ContentItem) string {
	if item.Payload.Title != "" {
		return item.Payload.Title
	}
	return TruncateRunes(item.Payload.Caption, 80)
}
