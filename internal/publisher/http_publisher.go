// internal/publisher/http_publisher.go
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/model"
)

// HTTPPublisher posts the item payload as JSON to a platform relay endpoint
// that answers with {"external_id": "..."}. The call is bounded only by ctx.
type HTTPPublisher struct {
	platform model.Platform
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPPublisher(platform model.Platform, endpoint, token string, client *http.Client) *HTTPPublisher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPPublisher{
		platform: platform,
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   client,
	}
}

func (p *HTTPPublisher) Platform() model.Platform { return p.platform }

type publishRequest struct {
	ItemID   string        `json:"item_id"`
	Platform string        `json:"platform"`
	Payload  model.Payload `json:"payload"`
}

type publishResponse struct {
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, item *model.ContentItem) (string, error) {
	body, err := json.Marshal(publishRequest{
		ItemID:   item.ID.String(),
		Platform: string(p.platform),
		Payload:  item.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", p.platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", p.platform, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &appErrors.PublishError{Platform: string(p.platform), Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out publishResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return "", &appErrors.PublishError{Platform: string(p.platform), StatusCode: resp.StatusCode, Message: msg}
	}
	if out.ExternalID == "" {
		return "", &appErrors.PublishError{Platform: string(p.platform), StatusCode: resp.StatusCode, Message: "response has no external_id"}
	}
	return out.ExternalID, nil
}
