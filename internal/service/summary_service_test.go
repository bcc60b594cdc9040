package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/notifier"
	"github.com/unclebandit/content-pipeline/internal/service"
)

func TestGenerateDailySummary_CountsMatchEvents(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.appendEvents(t, "blog_created", 2, day.Add(10*time.Hour))
	f.appendEvents(t, "instagram_created", 3, day.Add(11*time.Hour))
	f.appendEvents(t, "hashtags_generated", 5, day.Add(12*time.Hour))
	f.appendEvents(t, "linkedin_published", 4, day.Add(13*time.Hour))
	f.appendEvents(t, "instagram_failed", 1, day.Add(14*time.Hour))
	// Neighbouring days are excluded.
	f.appendEvents(t, "blog_created", 7, day.Add(-time.Minute))
	f.appendEvents(t, "blog_created", 7, day.Add(24*time.Hour+10*time.Minute))

	svc := service.NewSummaryService(f.logger, nil, nil)
	summary, err := svc.GenerateDailySummary(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2026-04-01", summary.Date)
	assert.Equal(t, map[string]int{
		"blog_created":       2,
		"instagram_created":  3,
		"hashtags_generated": 5,
		"linkedin_published": 4,
		"instagram_failed":   1,
	}, summary.Counts)
	assert.Equal(t, 15, summary.TotalEvents)
	assert.Equal(t, 4, summary.Published)
	assert.Equal(t, 1, summary.Failed)
	// 2*0.15 + 3*0.04 + 5*0.002
	assert.InDelta(t, 0.43, summary.EstimatedCost, 1e-9)

	again, err := svc.GenerateDailySummary(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
}

func TestGenerateDailySummary_CustomCostStrategy(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, "blog_published", 3, tickTime)

	flat := func(_ string, count int) float64 { return float64(count) }
	summary, err := service.NewSummaryService(f.logger, nil, flat).GenerateDailySummary(context.Background(), tickTime)
	require.NoError(t, err)
	assert.Equal(t, 3.0, summary.EstimatedCost)
}

func TestGenerateDailySummary_StoreError(t *testing.T) {
	events := service.NewEventLogger(brokenEvents{}, nullLogger(), time.Second)
	_, err := service.NewSummaryService(events, nil, nil).GenerateDailySummary(context.Background(), tickTime)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestSendDailySummary(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, "blog_published", 1, tickTime)

	rec := &recordingNotifier{}
	svc := service.NewSummaryService(f.logger, service.NewAlertDispatcher(rec, nil, nullLogger()), nil)
	summary, sent, err := svc.SendDailySummary(context.Background(), tickTime, tickTime)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, rec.sent, 1)
	assert.Equal(t, notifier.KindSummary, rec.sent[0].Kind)
	assert.Equal(t, "#1565c0", rec.sent[0].Color)
	assert.Equal(t, summary.Date, rec.sent[0].Details["date"])

	rec.err = errors.New("smtp down")
	_, sent, err = svc.SendDailySummary(context.Background(), tickTime, tickTime)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestFormatAlert_SeverityPresentation(t *testing.T) {
	cases := []struct {
		severity model.Severity
		label    string
		color    string
		icon     string
	}{
		{model.SeveritySuccess, "SUCCESS", "#2e7d32", "✅"},
		{model.SeverityWarning, "WARNING", "#f9a825", "⚠️"},
		{model.SeverityError, "ERROR", "#c62828", "❌"},
		{model.SeverityInfo, "INFO", "#1565c0", "ℹ️"},
	}
	for _, tc := range cases {
		t.Run(string(tc.severity), func(t *testing.T) {
			n := service.FormatAlert(model.Alert{Severity: tc.severity, Title: "t", Message: "m", Timestamp: tickTime})
			assert.Equal(t, notifier.KindAlert, n.Kind)
			assert.Equal(t, tc.label, n.Label)
			assert.Equal(t, tc.color, n.Color)
			assert.Equal(t, tc.icon, n.Icon)
			assert.Equal(t, tickTime, n.Timestamp)
		})
	}
}

func TestFormatAlert_UnknownSeverityIsInfo(t *testing.T) {
	n := service.FormatAlert(model.Alert{Severity: "critical", Title: "t", Message: "m"})
	assert.Equal(t, string(model.SeverityInfo), n.Severity)
	assert.Equal(t, "INFO", n.Label)
}

type panickingNotifier struct{}

func (panickingNotifier) Send(context.Context, notifier.Notification) error { panic("transport bug") }

func TestAlertDispatcher_SwallowsFailures(t *testing.T) {
	alert := model.Alert{Severity: model.SeverityError, Title: "t", Message: "m", Timestamp: tickTime}

	assert.False(t, service.NewAlertDispatcher(&recordingNotifier{err: errors.New("boom")}, nil, nullLogger()).SendAlert(context.Background(), alert))
	assert.False(t, service.NewAlertDispatcher(panickingNotifier{}, nil, nullLogger()).SendAlert(context.Background(), alert))
	assert.False(t, service.NewAlertDispatcher(nil, nil, nullLogger()).SendAlert(context.Background(), alert))
	assert.True(t, service.NewAlertDispatcher(&recordingNotifier{}, nil, nullLogger()).SendAlert(context.Background(), alert))
}
