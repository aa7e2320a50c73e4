package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/loykin/pausr/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) by POSTing each
// event to baseURL/index/_doc. Transient failures are retried.
type Sink struct {
	client  *retryablehttp.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = slog.Default().With("component", "history.opensearch")
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// WithRetries overrides the retry count.
func (s *Sink) WithRetries(n int) *Sink {
	s.client.RetryMax = n
	return s
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
