// internal/publisher/dry_run.go
package publisher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/model"
)

// DryRunPublisher logs the item instead of calling a remote platform.
type DryRunPublisher struct {
	platform model.Platform
	log      logrus.FieldLogger
}

func NewDryRunPublisher(platform model.Platform, log logrus.FieldLogger) *DryRunPublisher {
	return &DryRunPublisher{
		platform: platform,
		log:      log.WithField("component", "dry_run_publisher"),
	}
}

func (p *DryRunPublisher) Platform() model.Platform { return p.platform }

func (p *DryRunPublisher) Publish(ctx context.Context, item *model.ContentItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("dry-%s-%s", p.platform, item.ID.String()[:8])
	p.log.WithFields(logrus.Fields{
		"item_id":      item.ID,
		"platform":     p.platform,
		"title":        item.Payload.Title,
		"external_ref": ref,
	}).Info("dry run publish")
	return ref, nil
}
