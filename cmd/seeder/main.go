// cmd/seeder/main.go
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/app"
	"github.com/unclebandit/content-pipeline/internal/config"
	"github.com/unclebandit/content-pipeline/internal/logging"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/service"
)

type seedItem struct {
	input   service.CreateContentInput
	approve bool
	// delay schedules the item this far in the future; zero means due now.
	delay time.Duration
}

var seedItems = []seedItem{
	{
		input: service.CreateContentInput{
			Platform: model.PlatformBlog,
			Status:   model.StatusPendingReview,
			Payload: model.Payload{
				Title:      "Five ways to plan a content calendar",
				Excerpt:    "A practical guide to keeping a steady publishing cadence.",
				Body:       "Planning ahead keeps a team publishing even in busy weeks.",
				CoverImage: "https://cdn.example.com/covers/calendar.jpg",
				Category:   "marketing",
				Tags:       []string{"planning", "content"},
			},
		},
		approve: true,
	},
	{
		input: service.CreateContentInput{
			Platform: model.PlatformBlog,
			Status:   model.StatusPendingReview,
			Payload: model.Payload{
				Title:    "What we learned shipping weekly",
				Excerpt:  "Notes from a year of weekly releases.",
				Body:     "Small batches made reviews faster and rollbacks rare.",
				Category: "engineering",
				Tags:     []string{"delivery"},
			},
		},
		approve: true,
		delay:   24 * time.Hour,
	},
	{
		input: service.CreateContentInput{
			Platform: model.PlatformLinkedIn,
			Status:   model.StatusDraft,
			Payload:  model.Payload{Caption: "We're hiring editors. Reach out if storytelling is your thing."},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.Log, "seeder")

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	defer a.Close()

	now := time.Now().UTC()
	for _, s := range seedItems {
		item, err := a.Service.Create(ctx, s.input)
		if err != nil {
			log.WithError(err).Fatal("failed to seed content item")
		}
		if s.approve {
			var at *time.Time
			if s.delay > 0 {
				t := now.Add(s.delay)
				at = &t
			}
			if item, err = a.Service.Approve(ctx, item.ID, at); err != nil {
				log.WithError(err).Fatal("failed to approve seeded item")
			}
		}
		log.WithFields(logrus.Fields{
			"id":       item.ID,
			"platform": item.Platform,
			"status":   item.Status,
		}).Info("seeded content item")
	}

	log.Info("seeding completed")
}
