package enrichment

import (
	"context"
	"fmt"
	"time"

	svcmetrics "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/metrics"
	xhttp "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/http"
)

// Config describes one enrichment sidecar endpoint.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// httpBase centralizes client construction and JSON request handling
// for the enrichment sidecar adapters.
type httpBase struct {
	baseURL string
	retries int
	client  *xhttp.Client
}

func newHTTPBase(cfg Config) *httpBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	return &httpBase{
		baseURL: cfg.BaseURL,
		retries: retries,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// postJSON posts the payload to `path` under baseURL and decodes the
// JSON response into dest.
func (b *httpBase) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("enrichment http client not initialized")
	}
	start := time.Now()
	defer func() { svcmetrics.EnrichmentLatency.WithLabelValues(path).Observe(time.Since(start).Seconds()) }()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		svcmetrics.EnrichmentErrors.WithLabelValues(path).Inc()
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONRetry retries transient failures with a linear backoff.
func (b *httpBase) postJSONRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.retries <= 1 {
		return b.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= b.retries; i++ {
		err = b.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// getJSON issues a GET with query params and decodes JSON into dest.
func (b *httpBase) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("enrichment http client not initialized")
	}
	start := time.Now()
	defer func() { svcmetrics.EnrichmentLatency.WithLabelValues(path).Observe(time.Since(start).Seconds()) }()
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		svcmetrics.EnrichmentErrors.WithLabelValues(path).Inc()
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}
