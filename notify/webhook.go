// Package notify posts run summaries to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// ErrNotifyStatus indicates the endpoint answered with a non-2xx status.
var ErrNotifyStatus = errors.New("notify: unexpected status")

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Status   string             `json:"status"`
	Summary  *models.RunSummary `json:"summary"`
	Products []*models.Product  `json:"products"`
	Message  string             `json:"message"`
}

// WebhookNotifier posts payloads to a fixed URL.
type WebhookNotifier struct {
	url        string
	sampleSize int
	client     *http.Client
}

// NewWebhookNotifier returns nil when url is empty, meaning notification is disabled.
func NewWebhookNotifier(url string, sampleSize int, timeout time.Duration) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		url:        url,
		sampleSize: sampleSize,
		client:     &http.Client{Timeout: timeout},
	}
}

// Client exposes the HTTP client so tests can swap its transport.
func (n *WebhookNotifier) Client() *http.Client {
	return n.client
}

// BuildPayload assembles the body: status, summary, the first sampleSize records, message.
func BuildPayload(summary *models.RunSummary, products []*models.Product, sampleSize int) Payload {
	status := "success"
	if summary.Terminal == models.TerminalPageFailed {
		status = "partial"
	}
	sample := products
	if sampleSize >= 0 && len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	return Payload{
		Status:   status,
		Summary:  summary,
		Products: sample,
		Message:  fmt.Sprintf("%s '%s' finished: %d products", summary.Source, summary.Label, summary.TotalCount),
	}
}

// Notify posts the run result. Any non-2xx answer is returned as ErrNotifyStatus.
func (n *WebhookNotifier) Notify(ctx context.Context, summary *models.RunSummary, products []*models.Product) error {
	body, err := json.Marshal(BuildPayload(summary, products, n.sampleSize))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrNotifyStatus, resp.StatusCode)
	}
	return nil
}
