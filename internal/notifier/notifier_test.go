package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/content-pipeline/internal/queue"
)

type recordingSender struct {
	to, subject, body string
}

func (r *recordingSender) SendMail(_ context.Context, to, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return nil
}

func sampleAlert() Notification {
	return Notification{
		Kind:      KindAlert,
		Severity:  "warning",
		Label:     "WARNING",
		Color:     "#f9a825",
		Icon:      "⚠️",
		Title:     "High error rate",
		Message:   "2 of 12 publishes failed in the last 24h",
		Details:   map[string]any{"failed": 2, "total": 12},
		Timestamp: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestQueueNotifierRoundTrip(t *testing.T) {
	q := queue.NewInMemoryQueue()
	var got Notification
	require.NoError(t, q.Subscribe("pipeline_notifications", func(body []byte) error {
		var err error
		got, err = Decode(body)
		return err
	}))

	n := &QueueNotifier{Queue: q, Topic: "pipeline_notifications"}
	require.NoError(t, n.Send(context.Background(), sampleAlert()))
	assert.Equal(t, "High error rate", got.Title)
	assert.Equal(t, "#f9a825", got.Color)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"poke"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEmailNotifier(t *testing.T) {
	sender := &recordingSender{}
	n := &EmailNotifier{Sender: sender, Recipient: "ops@example.com"}

	require.NoError(t, n.Send(context.Background(), sampleAlert()))
	assert.Equal(t, "ops@example.com", sender.to)
	assert.Equal(t, "⚠️ [WARNING] High error rate", sender.subject)
	assert.Contains(t, sender.body, "2 of 12 publishes failed in the last 24h")
	assert.Contains(t, sender.body, "failed")
}

func TestSanitizeHeader(t *testing.T) {
	assert.Equal(t, "a b", sanitizeHeader("a\r\n b"))
}
