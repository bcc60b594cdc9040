// internal/notifier/email.go
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"
	"strings"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	// From is the envelope sender; FromName only decorates the header.
	From     string
	FromName string
}

// MailSender is the part of an SMTP client the email notifier needs.
type MailSender interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPSender struct {
	config SMTPConfig
	auth   smtp.Auth
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return &SMTPSender{config: config, auth: auth}
}

func (s *SMTPSender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	fromHeader := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []string{
		"From: " + sanitizeHeader(fromHeader),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	body := []byte(strings.Join(msg, "\r\n"))

	if err := smtp.SendMail(addr, s.auth, s.config.From, []string{sanitizeHeader(to)}, body); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<div style="border-left:6px solid {{.Color}};padding:12px 16px">
<h2 style="margin:0;color:{{.Color}}">{{.Icon}} {{.Label}}: {{.Title}}</h2>
<p>{{.Message}}</p>
{{if .Details}}<table cellpadding="4">
{{range .Details}}<tr><td><strong>{{.Key}}</strong></td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
<p style="color:#777;font-size:12px">{{.Timestamp}}</p>
</div>
</body></html>`))

type detailRow struct {
	Key   string
	Value any
}

// RenderHTML renders n as a small standalone HTML document.
func RenderHTML(n Notification) (string, error) {
	keys := make([]string, 0, len(n.Details))
	for k := range n.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]detailRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, detailRow{Key: k, Value: n.Details[k]})
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Notification
		Details   []detailRow
		Timestamp string
	}{
		Notification: n,
		Details:      rows,
		Timestamp:    n.Timestamp.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}
	return buf.String(), nil
}

// EmailNotifier mails each notification to a fixed recipient.
type EmailNotifier struct {
	Sender    MailSender
	Recipient string
}

func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	body, err := RenderHTML(n)
	if err != nil {
		return err
	}
	return e.Sender.SendMail(ctx, e.Recipient, n.Subject(), body)
}
