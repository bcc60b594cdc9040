// internal/service/pipeline.go
package service

import (
	"context"
	"time"

	"github.com/unclebandit/content-pipeline/internal/model"
)

// Pipeline is the set of entry points invoked by the external scheduler or
// the HTTP surface. Every entry point takes its clock reading explicitly.
type Pipeline struct {
	Dispatcher *Dispatcher
	Health     *HealthMonitor
	Summaries  *SummaryService
	Events     *EventLogger

	RetentionDays int
}

func (p *Pipeline) RunDispatchTick(ctx context.Context, now time.Time) (*TickResult, error) {
	return p.Dispatcher.RunDispatchTick(ctx, now)
}

func (p *Pipeline) RunHealthCheckTick(ctx context.Context, now time.Time) *HealthReport {
	return p.Health.RunHealthCheckTick(ctx, now)
}

func (p *Pipeline) GenerateDailySummary(ctx context.Context, date time.Time) (*model.DailySummary, error) {
	return p.Summaries.GenerateDailySummary(ctx, date)
}

func (p *Pipeline) SendDailySummary(ctx context.Context, date, now time.Time) (*model.DailySummary, bool, error) {
	return p.Summaries.SendDailySummary(ctx, date, now)
}

// Cleanup purges events older than olderThanDays, or the retention period when it is zero.
func (p *Pipeline) Cleanup(ctx context.Context, now time.Time, olderThanDays int) (int64, error) {
	if olderThanDays == 0 {
		olderThanDays = p.RetentionDays
	}
	if olderThanDays == 0 {
		olderThanDays = 30
	}
	return p.Events.Cleanup(ctx, now, olderThanDays)
}
