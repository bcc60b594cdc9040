// internal/notifier/notifier.go
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/queue"
)

const (
	KindAlert   = "alert"
	KindSummary = "summary"
)

// Notification is the transport-agnostic form of an alert or daily summary.
type Notification struct {
	Kind      string         `json:"kind"`
	Severity  string         `json:"severity"`
	Label     string         `json:"label"`
	Color     string         `json:"color"`
	Icon      string         `json:"icon"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subject is the one-line heading used by mail and chat transports.
func (n Notification) Subject() string {
	return fmt.Sprintf("%s [%s] %s", n.Icon, n.Label, n.Title)
}

// Notifier delivers notifications to humans. Send may fail; callers decide
// whether that matters.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// QueueNotifier publishes notifications as JSON for the relay worker.
type QueueNotifier struct {
	Queue queue.Queue
	Topic string
}

func (q *QueueNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return q.Queue.Publish(ctx, q.Topic, body)
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	l.Log.WithFields(logrus.Fields{
		"kind":     n.Kind,
		"severity": n.Severity,
		"title":    n.Title,
		"details":  n.Details,
	}).Info(n.Message)
	return nil
}

// Decode parses a notification published by QueueNotifier.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Kind != KindAlert && n.Kind != KindSummary {
		return Notification{}, fmt.Errorf("decode notification: unknown kind %q", n.Kind)
	}
	return n, nil
}
