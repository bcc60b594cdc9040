// internal/service/summary_service.go
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/unclebandit/content-pipeline/internal/model"
)

// CostEstimator prices count occurrences of eventType. It is a heuristic, not
// metered usage.
type CostEstimator func(eventType string, count int) float64

// DefaultUnitCosts are the per-event estimates in USD.
var DefaultUnitCosts = map[string]float64{
	model.CreatedEvent(model.PlatformBlog):      0.15,
	model.CreatedEvent(model.PlatformInstagram): 0.04,
	model.CreatedEvent(model.PlatformLinkedIn):  0.02,
	model.EventHashtagsGenerated:                0.002,
}

// TableCostEstimator prices events from a unit-cost table; unknown types are free.
func TableCostEstimator(table map[string]float64) CostEstimator {
	return func(eventType string, count int) float64 {
		return table[eventType] * float64(count)
	}
}

type SummaryService struct {
	Events *EventLogger
	Alerts *AlertDispatcher
	Cost   CostEstimator
}

func NewSummaryService(events *EventLogger, alerts *AlertDispatcher, cost CostEstimator) *SummaryService {
	if cost == nil {
		cost = TableCostEstimator(DefaultUnitCosts)
	}
	return &SummaryService{Events: events, Alerts: alerts, Cost: cost}
}

// GenerateDailySummary aggregates the events of date's UTC day. It reads
// only, so repeated calls over unchanged events return the same summary.
func (s *SummaryService) GenerateDailySummary(ctx context.Context, date time.Time) (*model.DailySummary, error) {
	counts, err := s.Events.StatsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	start, _ := model.DayBounds(date)
	summary := &model.DailySummary{
		Date:   start.Format(time.DateOnly),
		Counts: make(map[string]int, len(counts)),
	}
	var cost float64
	for _, t := range types {
		n := counts[t]
		summary.Counts[t] = n
		summary.TotalEvents += n
		switch {
		case model.IsDispatchSuccess(t):
			summary.Published += n
		case model.IsDispatchFailure(t):
			summary.Failed += n
		}
		cost += s.Cost(t, n)
	}
	summary.EstimatedCost = math.Round(cost*10000) / 10000
	return summary, nil
}

// SendDailySummary generates the summary for date and hands it to the
// notifier. Delivery failure is reported through sent, not err.
func (s *SummaryService) SendDailySummary(ctx context.Context, date, now time.Time) (summary *model.DailySummary, sent bool, err error) {
	summary, err = s.GenerateDailySummary(ctx, date)
	if err != nil {
		return nil, false, err
	}
	if s.Alerts == nil {
		return summary, false, nil
	}
	return summary, s.Alerts.SendSummary(ctx, summary, now), nil
}
