package sink

import (
	"Go2NetGuard/internal/model"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPPublisher POSTs alerts as JSON to the alert API.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher creates a publisher for url.
func NewHTTPPublisher(url string, client *http.Client) (*HTTPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("http sink requires a url")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPublisher{url: url, client: client}, nil
}

func (p *HTTPPublisher) Publish(ctx context.Context, alert *model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert API returned %s", resp.Status)
	}
	return nil
}
