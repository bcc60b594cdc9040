// internal/service/alert_dispatcher.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/notifier"
)

type presentation struct {
	Label string
	Color string
	Icon  string
}

var severityPresentation = map[model.Severity]presentation{
	model.SeveritySuccess: {Label: "SUCCESS", Color: "#2e7d32", Icon: "✅"},
	model.SeverityWarning: {Label: "WARNING", Color: "#f9a825", Icon: "⚠️"},
	model.SeverityError:   {Label: "ERROR", Color: "#c62828", Icon: "❌"},
	model.SeverityInfo:    {Label: "INFO", Color: "#1565c0", Icon: "ℹ️"},
}

func presentationFor(s model.Severity) presentation {
	return severityPresentation[s]
}

// FormatAlert converts an alert into a transport-agnostic notification.
// Unknown severities are presented as info.
func FormatAlert(a model.Alert) notifier.Notification {
	severity := a.Severity
	if !severity.IsValid() {
		severity = model.SeverityInfo
	}
	p := presentationFor(severity)
	return notifier.Notification{
		Kind:      notifier.KindAlert,
		Severity:  string(severity),
		Label:     p.Label,
		Color:     p.Color,
		Icon:      p.Icon,
		Title:     a.Title,
		Message:   a.Message,
		Details:   a.Details,
		Timestamp: a.Timestamp,
	}
}

// FormatSummary converts a daily summary into an info notification.
func FormatSummary(s *model.DailySummary, at time.Time) notifier.Notification {
	p := presentationFor(model.SeverityInfo)
	counts := make(map[string]any, len(s.Counts))
	for k, v := range s.Counts {
		counts[k] = v
	}
	return notifier.Notification{
		Kind:     notifier.KindSummary,
		Severity: string(model.SeverityInfo),
		Label:    p.Label,
		Color:    p.Color,
		Icon:     p.Icon,
		Title:    fmt.Sprintf("Daily pipeline summary %s", s.Date),
		Message: fmt.Sprintf("%d events, %d published, %d failed, estimated cost $%.4f",
			s.TotalEvents, s.Published, s.Failed, s.EstimatedCost),
		Details: map[string]any{
			"date":           s.Date,
			"counts":         counts,
			"total_events":   s.TotalEvents,
			"published":      s.Published,
			"failed":         s.Failed,
			"estimated_cost": s.EstimatedCost,
		},
		Timestamp: at,
	}
}

// AlertDispatcher hands alerts and summaries to the Notifier. Delivery
// failures are logged and counted, never returned.
type AlertDispatcher struct {
	Notifier notifier.Notifier
	Metrics  *metrics.Collector
	Log      logrus.FieldLogger
}

func NewAlertDispatcher(n notifier.Notifier, m *metrics.Collector, log logrus.FieldLogger) *AlertDispatcher {
	return &AlertDispatcher{
		Notifier: n,
		Metrics:  m,
		Log:      log.WithField("component", "alert_dispatcher"),
	}
}

// SendAlert reports whether the notifier accepted the alert.
func (d *AlertDispatcher) SendAlert(ctx context.Context, a model.Alert) bool {
	return d.send(ctx, FormatAlert(a))
}

// SendSummary reports whether the notifier accepted the summary.
func (d *AlertDispatcher) SendSummary(ctx context.Context, s *model.DailySummary, at time.Time) bool {
	return d.send(ctx, FormatSummary(s, at))
}

func (d *AlertDispatcher) send(ctx context.Context, n notifier.Notification) (ok bool) {
	log := d.Log.WithFields(logrus.Fields{"kind": n.Kind, "title": n.Title})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("notifier panicked: %v", r)
			d.Metrics.NotifierFailure()
			ok = false
		}
	}()

	if d.Notifier == nil {
		log.Warn("no notifier configured, dropping notification")
		return false
	}
	if err := d.Notifier.Send(ctx, n); err != nil {
		log.WithError(err).Warn("notification delivery failed")
		d.Metrics.NotifierFailure()
		return false
	}
	return true
}
