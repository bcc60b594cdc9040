// internal/service/health_monitor.go
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/content-pipeline/internal/config"
	"github.com/unclebandit/content-pipeline/internal/metrics"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/repository"
)

// CheckFunc evaluates one condition at now. details fill the alert message.
type CheckFunc func(ctx context.Context, now time.Time) (triggered bool, details map[string]any, err error)

// AlertCondition is one health rule and the alert it raises.
type AlertCondition struct {
	Name     string
	Severity model.Severity
	Title    string
	// Message is a template over the check details, e.g. "{failed} of {total} failed".
	Message string
	Check   CheckFunc
}

// CredentialSource lists external credentials with known expiry dates.
type CredentialSource interface {
	Credentials(ctx context.Context) ([]model.Credential, error)
}

// StaticCredentials is a CredentialSource backed by configuration.
type StaticCredentials []model.Credential

func (s StaticCredentials) Credentials(context.Context) ([]model.Credential, error) {
	return s, nil
}

type ConditionResult struct {
	Condition string `json:"condition"`
	Triggered bool   `json:"triggered"`
	Error     string `json:"error,omitempty"`
}

type HealthReport struct {
	CheckedAt time.Time         `json:"checked_at"`
	Results   []ConditionResult `json:"results"`
	Alerts    []model.Alert     `json:"alerts"`
}

// HealthMonitor evaluates every condition on every run. There is no cooldown:
// a condition that stays true alerts again on the next run.
type HealthMonitor struct {
	Conditions []AlertCondition
	Alerts     *AlertDispatcher
	Events     *EventLogger
	Metrics    *metrics.Collector
	Log        logrus.FieldLogger
	// CheckTimeout bounds each condition; one that overruns counts as not triggered.
	CheckTimeout time.Duration
}

const defaultCheckTimeout = 10 * time.Second

func NewHealthMonitor(conditions []AlertCondition, alerts *AlertDispatcher, events *EventLogger, m *metrics.Collector, log logrus.FieldLogger) *HealthMonitor {
	return &HealthMonitor{
		Conditions:   conditions,
		Alerts:       alerts,
		Events:       events,
		Metrics:      m,
		Log:          log.WithField("component", "health_monitor"),
		CheckTimeout: defaultCheckTimeout,
	}
}

// RunHealthCheckTick evaluates all conditions concurrently and dispatches an
// alert for each one that fired. A failing condition counts as not triggered.
func (h *HealthMonitor) RunHealthCheckTick(ctx context.Context, now time.Time) *HealthReport {
	report := &HealthReport{
		CheckedAt: now,
		Results:   make([]ConditionResult, len(h.Conditions)),
		Alerts:    []model.Alert{},
	}
	fired := make([]*model.Alert, len(h.Conditions))

	var mu sync.Mutex
	var g errgroup.Group
	for i, cond := range h.Conditions {
		i, cond := i, cond
		g.Go(func() error {
			res, alert := h.evaluate(ctx, cond, now)
			mu.Lock()
			report.Results[i] = res
			fired[i] = alert
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, alert := range fired {
		if alert == nil {
			continue
		}
		report.Alerts = append(report.Alerts, *alert)
		h.raise(ctx, *alert)
	}

	h.Log.WithFields(logrus.Fields{
		"now":        now,
		"conditions": len(h.Conditions),
		"alerts":     len(report.Alerts),
	}).Info("health check finished")
	return report
}

type checkOutcome struct {
	triggered bool
	details   map[string]any
	err       error
}

func (h *HealthMonitor) evaluate(ctx context.Context, cond AlertCondition, now time.Time) (ConditionResult, *model.Alert) {
	res := ConditionResult{Condition: cond.Name}
	log := h.Log.WithField("condition", cond.Name)

	limit := h.CheckTimeout
	if limit <= 0 {
		limit = defaultCheckTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// The check runs on its own goroutine so one that ignores its context
	// cannot hold back the other conditions' alerts.
	done := make(chan checkOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("health condition panicked: %v", r)
				done <- checkOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		triggered, details, err := cond.Check(cctx, now)
		done <- checkOutcome{triggered: triggered, details: details, err: err}
	}()

	var out checkOutcome
	select {
	case out = <-done:
	case <-cctx.Done():
		out.err = fmt.Errorf("health condition did not finish within %s: %w", limit, cctx.Err())
	}
	if out.err != nil {
		log.WithError(out.err).Warn("health condition unavailable, treating as not triggered")
		res.Error = out.err.Error()
		return res, nil
	}
	if !out.triggered {
		return res, nil
	}

	res.Triggered = true
	return res, &model.Alert{
		Condition: cond.Name,
		Severity:  cond.Severity,
		Title:     cond.Title,
		Message:   RenderTemplate(cond.Message, stringify(out.details)),
		Details:   out.details,
		Timestamp: now,
	}
}

func (h *HealthMonitor) raise(ctx context.Context, a model.Alert) {
	h.Metrics.HealthAlert(a.Condition)
	h.Log.WithFields(logrus.Fields{"condition": a.Condition, "severity": a.Severity}).Warn(a.Message)

	if h.Alerts != nil {
		h.Alerts.SendAlert(ctx, a)
	}
	h.Events.Append(ctx, &model.PipelineEvent{
		EventType:   model.EventHealthAlert,
		OccurredAt:  a.Timestamp,
		Title:       a.Title,
		Description: a.Message,
		Metadata:    map[string]any{"condition": a.Condition, "severity": string(a.Severity), "details": a.Details},
	})
}

func stringify(details map[string]any) map[string]string {
	out := make(map[string]string, len(details))
	for k, v := range details {
		switch t := v.(type) {
		case float64:
			out[k] = fmt.Sprintf("%.1f", t)
		case []string:
			out[k] = strings.Join(t, ", ")
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// DefaultConditions builds the standard rule set from cfg.
func DefaultConditions(cfg config.HealthConfig, events *EventLogger, store repository.ContentItemRepositoryInterface, creds CredentialSource) []AlertCondition {
	return []AlertCondition{
		ErrorRateCondition(events, cfg.ErrorRateWindow, cfg.ErrorRateThreshold),
		StalledGenerationCondition(store, cfg.StalledWindow),
		FailureSpikeCondition(events, cfg.FailureSpikeWindow, cfg.FailureSpikeCount),
		CredentialExpiryCondition(creds, cfg.CredentialExpiryWarn),
	}
}

// ErrorRateCondition fires when failed/total dispatch outcomes in the window
// exceed threshold. No outcomes at all never fires.
func ErrorRateCondition(events *EventLogger, window time.Duration, threshold float64) AlertCondition {
	return AlertCondition{
		Name:     "error_rate",
		Severity: model.SeverityWarning,
		Title:    "High publish error rate",
		Message:  "{failed} of {total} publish attempts failed in the last {window} ({rate}%)",
		Check: func(ctx context.Context, now time.Time) (bool, map[string]any, error) {
			counts, err := events.CountSince(ctx, now, window)
			if err != nil {
				return false, nil, err
			}
			var failed, total int
			for eventType, n := range counts {
				if model.IsDispatchFailure(eventType) {
					failed += n
					total += n
				} else if model.IsDispatchSuccess(eventType) {
					total += n
				}
			}
			if total == 0 {
				return false, nil, nil
			}
			rate := float64(failed) / float64(total)
			return rate > threshold, map[string]any{
				"failed": failed,
				"total":  total,
				"rate":   rate * 100,
				"window": window.String(),
			}, nil
		},
	}
}

// StalledGenerationCondition fires when no blog items were created in the window.
func StalledGenerationCondition(store repository.ContentItemRepositoryInterface, window time.Duration) AlertCondition {
	return AlertCondition{
		Name:     "stalled_generation",
		Severity: model.SeverityWarning,
		Title:    "Content generation stalled",
		Message:  "No new blog articles were created in the last {window}",
		Check: func(ctx context.Context, now time.Time) (bool, map[string]any, error) {
			n, err := store.CountCreatedSince(ctx, model.PlatformBlog, now.Add(-window))
			if err != nil {
				return false, nil, err
			}
			return n == 0, map[string]any{"window": window.String(), "created": n}, nil
		},
	}
}

// FailureSpikeCondition fires when any single failure event type occurred at
// least count times in the window.
func FailureSpikeCondition(events *EventLogger, window time.Duration, count int) AlertCondition {
	return AlertCondition{
		Name:     "failure_spike",
		Severity: model.SeverityWarning,
		Title:    "Failure spike detected",
		Message:  "{event_types} reached {count} or more failures in the last {window}",
		Check: func(ctx context.Context, now time.Time) (bool, map[string]any, error) {
			counts, err := events.CountSince(ctx, now, window)
			if err != nil {
				return false, nil, err
			}
			spiking := map[string]any{}
			var names []string
			for eventType, n := range counts {
				if model.IsFailure(eventType) && n >= count {
					spiking[eventType] = n
					names = append(names, eventType)
				}
			}
			if len(names) == 0 {
				return false, nil, nil
			}
			sort.Strings(names)
			return true, map[string]any{
				"event_types": names,
				"counts":      spiking,
				"count":       count,
				"window":      window.String(),
			}, nil
		},
	}
}

// CredentialExpiryCondition fires when any credential expires within warn of now.
// A nil source never fires.
func CredentialExpiryCondition(source CredentialSource, warn time.Duration) AlertCondition {
	return AlertCondition{
		Name:     "credential_expiry",
		Severity: model.SeverityWarning,
		Title:    "Platform credentials expiring",
		Message:  "Credentials expiring soon: {credentials}",
		Check: func(ctx context.Context, now time.Time) (bool, map[string]any, error) {
			if source == nil {
				return false, nil, nil
			}
			creds, err := source.Credentials(ctx)
			if err != nil {
				return false, nil, err
			}
			var expiring []string
			for _, c := range creds {
				if c.ExpiresAt.Sub(now) <= warn {
					expiring = append(expiring, fmt.Sprintf("%s (%s)", c.Name, c.ExpiresAt.UTC().Format(time.RFC3339)))
				}
			}
			if len(expiring) == 0 {
				return false, nil, nil
			}
			return true, map[string]any{"credentials": expiring, "warn_within": warn.String()}, nil
		},
	}
}
