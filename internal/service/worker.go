// internal/service/worker.go
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/content-pipeline/internal/notifier"
	"github.com/unclebandit/content-pipeline/internal/queue"
)

// NotificationRelay consumes queued notifications and hands them to the
// delivering Notifier (e-mail in production).
type NotificationRelay struct {
	Sender notifier.Notifier
	Log    logrus.FieldLogger
}

func NewNotificationRelay(sender notifier.Notifier, log logrus.FieldLogger) *NotificationRelay {
	return &NotificationRelay{
		Sender: sender,
		Log:    log.WithField("component", "notification_relay"),
	}
}

// Handle processes one message. Malformed messages are dropped (nil error) so
// they are acked; a delivery failure is returned so the broker can discard it.
func (w *NotificationRelay) Handle(body []byte) error {
	n, err := notifier.Decode(body)
	if err != nil {
		w.Log.WithError(err).Warn("dropping malformed notification")
		return nil
	}

	log := w.Log.WithFields(logrus.Fields{"kind": n.Kind, "title": n.Title})
	if err := w.Sender.Send(context.Background(), n); err != nil {
		log.WithError(err).Error("notification delivery failed")
		return fmt.Errorf("deliver %s %q: %w", n.Kind, n.Title, err)
	}
	log.Info("notification delivered")
	return nil
}

// Run subscribes to topic and blocks until ctx is done.
func (w *NotificationRelay) Run(ctx context.Context, q queue.Queue, topic string) error {
	if err := q.Subscribe(topic, w.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	w.Log.WithField("topic", topic).Info("notification relay started")
	<-ctx.Done()
	return nil
}
