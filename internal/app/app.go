// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/config"
	"github.com/unclebandit/content-pipeline/internal/db"
	"github.com/unclebandit/content-pipeline/internal/hashtag"
	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/notifier"
	"github.com/unclebandit/content-pipeline/internal/publisher"
	"github.com/unclebandit/content-pipeline/internal/queue"
	"github.com/unclebandit/content-pipeline/internal/repository"
	"github.com/unclebandit/content-pipeline/internal/service"
)

// App is the wired pipeline shared by the server and the tick CLI.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Metrics  *metrics.Collector
	DB       *sql.DB
	Content  repository.ContentItemRepositoryInterface
	Pipeline *service.Pipeline
	Service  *service.ContentService

	closers []func() error
}

// Build connects the configured store, publishers and notifier and wires the
// services together.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	var events repository.EventRepositoryInterface
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using the in-memory store, state is lost on exit")
		a.Content = repository.NewMemoryContentItemRepository()
		events = repository.NewMemoryEventRepository()
	default:
		conn, err := db.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx, conn, log); err != nil {
				a.Close()
				return nil, err
			}
		}
		a.Content = &repository.ContentItemRepository{DB: conn}
		events = &repository.EventRepository{DB: conn}
	}

	n, err := a.buildNotifier(cfg.Notifier)
	if err != nil {
		a.Close()
		return nil, err
	}

	creds, err := cfg.Credentials.Parse()
	if err != nil {
		a.Close()
		return nil, err
	}

	eventLogger := service.NewEventLogger(events, log, cfg.Events.AppendTimeout)
	dispatcher := service.NewDispatcher(a.Content, buildPublishers(cfg.Publishers, log), eventLogger, a.Metrics, log, cfg.Dispatch.PublishTimeout)

	targets := promotionTargets(cfg.Promotion, log)
	if cfg.Promotion.Enabled && len(targets) == 0 {
		log.Warn("PROMOTION_TARGETS names no promotable platform, published articles will not be promoted")
	}
	if cfg.Promotion.Enabled && len(targets) > 0 {
		var gen hashtag.Generator
		if cfg.Hashtags.APIKey != "" {
			gen = hashtag.NewLLMGenerator(hashtag.LLMConfig{
				APIURL:      cfg.Hashtags.APIURL,
				APIKey:      cfg.Hashtags.APIKey,
				Model:       cfg.Hashtags.Model,
				MaxHashtags: cfg.Hashtags.MaxHashtags,
			})
		}
		suggester := hashtag.NewSuggester(gen, config.SplitList(cfg.Promotion.StaticHashtags), cfg.Promotion.HashtagTimeout)
		promoter := service.NewPromoter(a.Content, dispatcher, suggester, eventLogger, a.Metrics, log, targets, nil)
		promoter.BlogURL = cfg.Promotion.BlogURL
		dispatcher.Promoter = promoter
	}

	alerts := service.NewAlertDispatcher(n, a.Metrics, log)
	var credSource service.CredentialSource
	if len(creds) > 0 {
		credSource = service.StaticCredentials(creds)
	}
	health := service.NewHealthMonitor(
		service.DefaultConditions(cfg.Health, eventLogger, a.Content, credSource),
		alerts, eventLogger, a.Metrics, log,
	)
	health.CheckTimeout = cfg.Health.CheckTimeout

	a.Pipeline = &service.Pipeline{
		Dispatcher:    dispatcher,
		Health:        health,
		Summaries:     service.NewSummaryService(eventLogger, alerts, nil),
		Events:        eventLogger,
		RetentionDays: cfg.Events.RetentionDays,
	}
	a.Service = &service.ContentService{
		ContentRepo: a.Content,
		Events:      eventLogger,
		Dispatcher:  dispatcher,
	}
	return a, nil
}

func (a *App) buildNotifier(cfg config.NotifierConfig) (notifier.Notifier, error) {
	switch cfg.Driver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.AMQPURL, a.Log)
		if err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
		a.closers = append(a.closers, q.Close)
		return &notifier.QueueNotifier{Queue: q, Topic: cfg.Queue}, nil
	case "email":
		return NewEmailNotifier(cfg), nil
	case "inproc":
		var sink notifier.Notifier = &notifier.LogNotifier{Log: a.Log.WithField("component", "notifier")}
		if cfg.SMTPHost != "" && cfg.Recipient != "" {
			sink = NewEmailNotifier(cfg)
		}
		q := queue.NewInMemoryQueue()
		relay := service.NewNotificationRelay(sink, a.Log)
		if err := q.Subscribe(cfg.Queue, relay.Handle); err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
		return &notifier.QueueNotifier{Queue: q, Topic: cfg.Queue}, nil
	default:
		return &notifier.LogNotifier{Log: a.Log.WithField("component", "notifier")}, nil
	}
}

// NewEmailNotifier builds the SMTP notifier used directly or by the relay worker.
func NewEmailNotifier(cfg config.NotifierConfig) *notifier.EmailNotifier {
	return &notifier.EmailNotifier{
		Sender: notifier.NewSMTPSender(notifier.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			FromName: cfg.FromName,
		}),
		Recipient: cfg.Recipient,
	}
}

func buildPublishers(cfg config.PublishersConfig, log logrus.FieldLogger) *publisher.Registry {
	registry := publisher.NewRegistry()
	if cfg.Mode != "http" {
		for _, p := range model.Platforms {
			registry.Register(publisher.NewDryRunPublisher(p, log))
		}
		return registry
	}

	client := &http.Client{Timeout: 60 * time.Second}
	endpoints := map[model.Platform][2]string{
		model.PlatformBlog:      {cfg.BlogEndpoint, cfg.BlogToken},
		model.PlatformInstagram: {cfg.InstagramEndpoint, cfg.InstagramToken},
		model.PlatformLinkedIn:  {cfg.LinkedInEndpoint, cfg.LinkedInToken},
	}
	for _, p := range model.Platforms {
		ep := endpoints[p]
		if ep[0] == "" {
			log.WithField("platform", p).Warn("no publisher endpoint configured, items for this platform will fail")
			continue
		}
		registry.Register(publisher.NewHTTPPublisher(p, ep[0], ep[1], client))
	}
	return registry
}

// promotionTargets never returns nil, so an empty list stays an explicit choice.
func promotionTargets(cfg config.PromotionConfig, log logrus.FieldLogger) []service.PromotionTarget {
	budgets := map[model.Platform]int{
		model.PlatformInstagram: cfg.InstagramBudget,
		model.PlatformLinkedIn:  cfg.LinkedInBudget,
	}
	platforms, skipped := cfg.TargetPlatforms()
	for _, name := range skipped {
		log.WithField("target", name).Warn("ignoring unknown promotion target")
	}
	targets := []service.PromotionTarget{}
	for _, p := range platforms {
		targets = append(targets, service.PromotionTarget{Platform: p, Budget: budgets[p]})
	}
	return targets
}

// Close releases the database and broker connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
