// internal/service/promoter.go
package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/hashtag"
	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/repository"
)

// PromotionTarget is a social platform articles are promoted to, with its
// caption budget in characters.
type PromotionTarget struct {
	Platform model.Platform
	Budget   int
}

// DefaultPromotionTargets are the platform caption limits.
var DefaultPromotionTargets = []PromotionTarget{
	{Platform: model.PlatformInstagram, Budget: 2200},
	{Platform: model.PlatformLinkedIn, Budget: 3000},
}

// DefaultIntroductions are the caption openers; {title} is the article title.
var DefaultIntroductions = []string{
	"New on the blog: {title}",
	"Fresh read: {title}",
	"We just published {title}",
	"In case you missed it: {title}",
}

// RandSource picks introduction variants. *rand.Rand satisfies it.
type RandSource interface {
	Intn(n int) int
}

// lockedRand makes a RandSource safe for concurrent ticks.
type lockedRand struct {
	mu  sync.Mutex
	src RandSource
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

// HashtagSuggester returns hashtags for an article, falling back when needed.
type HashtagSuggester interface {
	Suggest(ctx context.Context, req hashtag.Request) hashtag.Result
}

// ImmediatePublisher runs one publish attempt for an item right away.
type ImmediatePublisher interface {
	PublishNow(ctx context.Context, item *model.ContentItem, expected model.Status, now time.Time) Outcome
}

type PromotionOutcome struct {
	Platform model.Platform `json:"platform"`
	ItemID   uuid.UUID      `json:"item_id,omitempty"`
	Publish  *Outcome       `json:"publish,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Promoter derives social posts from a published article and publishes them
// immediately, bypassing review. Targets are independent of each other.
type Promoter struct {
	Store     repository.ContentItemRepositoryInterface
	Publisher ImmediatePublisher
	Hashtags  HashtagSuggester
	Events    *EventLogger
	Metrics   *metrics.Collector
	Log       logrus.FieldLogger

	Targets       []PromotionTarget
	Introductions []string
	Rand          RandSource
	BlogURL       string
}

// NewPromoter builds a Promoter. nil targets means DefaultPromotionTargets;
// an empty, non-nil slice turns promotion off.
func NewPromoter(store repository.ContentItemRepositoryInterface, pub ImmediatePublisher, hashtags HashtagSuggester,
	events *EventLogger, m *metrics.Collector, log logrus.FieldLogger, targets []PromotionTarget, rnd RandSource) *Promoter {
	if targets == nil {
		targets = DefaultPromotionTargets
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Promoter{
		Store:         store,
		Publisher:     pub,
		Hashtags:      hashtags,
		Events:        events,
		Metrics:       m,
		Log:           log.WithField("component", "promoter"),
		Targets:       targets,
		Introductions: DefaultIntroductions,
		Rand:          &lockedRand{src: rnd},
	}
}

// PromoteArticle creates and publishes one derived item per target.
func (p *Promoter) PromoteArticle(ctx context.Context, article *model.ContentItem, now time.Time) []PromotionOutcome {
	if article.Platform != model.PlatformBlog || article.Status != model.StatusPublished || len(p.Targets) == 0 {
		return nil
	}
	log := p.Log.WithField("article_id", article.ID)

	tags := p.suggestHashtags(ctx, article, now)

	outcomes := make([]PromotionOutcome, 0, len(p.Targets))
	for _, target := range p.Targets {
		outcomes = append(outcomes, p.promoteTo(ctx, log, article, target, tags, now))
	}
	return outcomes
}

func (p *Promoter) suggestHashtags(ctx context.Context, article *model.ContentItem, now time.Time) []string {
	res := p.Hashtags.Suggest(ctx, hashtag.Request{
		Title:    article.Payload.Title,
		Excerpt:  article.Payload.Excerpt,
		Category: article.Payload.Category,
		Tags:     article.Payload.Tags,
	})

	event := &model.PipelineEvent{
		EventType:  model.EventHashtagsGenerated,
		SubjectID:  &article.ID,
		OccurredAt: now,
		Title:      "Hashtags generated",
		Metadata:   map[string]any{"hashtags": res.Tags},
	}
	if res.Fallback {
		p.Metrics.HashtagFallback()
		p.Log.WithField("article_id", article.ID).WithError(res.Err).Warn("hashtag generation failed, using static list")
		event.EventType = model.EventHashtagsFallback
		event.Title = "Hashtag generation fell back to static list"
		if res.Err != nil {
			event.ErrorMessage = res.Err.Error()
		}
	}
	p.Events.Append(ctx, event)
	return res.Tags
}

func (p *Promoter) promoteTo(ctx context.Context, log logrus.FieldLogger, article *model.ContentItem, target PromotionTarget,
	tags []string, now time.Time) (out PromotionOutcome) {
	out = PromotionOutcome{Platform: target.Platform}
	log = log.WithField("target", target.Platform)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("promotion panicked: %v", r)
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	at := now
	sourceID := article.ID
	derived := &model.ContentItem{
		Platform:     target.Platform,
		Status:       model.StatusApproved,
		Payload:      p.derivePayload(article, target, tags),
		ScheduledFor: &at,
		SourceID:     &sourceID,
		CreatedAt:    now,
	}

	if err := p.Store.Create(ctx, derived); err != nil {
		log.WithError(err).Warn("failed to create promotion item")
		out.Error = err.Error()
		p.Events.Append(ctx, &model.PipelineEvent{
			EventType:    model.EventPromotionFailed,
			SubjectID:    &article.ID,
			OccurredAt:   now,
			Title:        fmt.Sprintf("Promotion to %s failed", target.Platform),
			Description:  article.Payload.Title,
			Metadata:     map[string]any{"platform": string(target.Platform)},
			ErrorMessage: err.Error(),
		})
		return out
	}
	out.ItemID = derived.ID

	p.Events.Append(ctx, &model.PipelineEvent{
		EventType:   model.EventPromotionCreated,
		SubjectID:   &derived.ID,
		OccurredAt:  now,
		Title:       fmt.Sprintf("Promotion for %s created", target.Platform),
		Description: article.Payload.Title,
		Metadata:    map[string]any{"platform": string(target.Platform), "source_id": article.ID.String()},
	})

	publish := p.Publisher.PublishNow(ctx, derived, model.StatusApproved, now)
	out.Publish = &publish
	out.Error = publish.Error
	return out
}

func (p *Promoter) derivePayload(article *model.ContentItem, target PromotionTarget, tags []string) model.Payload {
	intro := article.Payload.Title
	if len(p.Introductions) > 0 {
		variant := p.Introductions[p.Rand.Intn(len(p.Introductions))]
		intro = RenderTemplate(variant, map[string]string{"title": article.Payload.Title})
	}

	caption, kept := ComposeCaption(intro, article.Payload.Excerpt, p.BlogURL, tags, target.Budget)

	var media []string
	if article.Payload.CoverImage != "" {
		media = []string{article.Payload.CoverImage}
	}
	return model.Payload{
		Title:      article.Payload.Title,
		Excerpt:    article.Payload.Excerpt,
		Caption:    caption,
		CoverImage: article.Payload.CoverImage,
		MediaRefs:  media,
		Category:   article.Payload.Category,
		Tags:       append([]string(nil), article.Payload.Tags...),
		Hashtags:   kept,
	}
}

// ComposeCaption builds "intro\n\nexcerpt\n\nlink\n\n#tags" within budget
// runes. Hashtags never take more than half the budget; the text part is cut
// with an ellipsis. It returns the caption and the hashtags that fit.
func ComposeCaption(intro, excerpt, link string, tags []string, budget int) (string, []string) {
	kept := append([]string(nil), tags...)
	suffix := strings.Join(kept, " ")
	for len(kept) > 0 && utf8.RuneCountInString(suffix)+2 > budget/2 {
		kept = kept[:len(kept)-1]
		suffix = strings.Join(kept, " ")
	}

	parts := []string{strings.TrimSpace(intro)}
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		parts = append(parts, excerpt)
	}
	if link != "" {
		parts = append(parts, link)
	}
	head := strings.Join(parts, "\n\n")

	if suffix == "" {
		return TruncateRunes(head, budget), kept
	}
	head = TruncateRunes(head, budget-utf8.RuneCountInString(suffix)-2)
	return head + "\n\n" + suffix, kept
}
