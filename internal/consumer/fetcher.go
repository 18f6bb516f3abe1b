// Package consumer holds the two ingestion channels: the long-lived stream
// from the aggregator and the pull channel against the LAN alarm host.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"renaissance-stewcall/internal/models"
	"renaissance-stewcall/internal/parser"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNoUpstream every candidate endpoint failed
var ErrNoUpstream = errors.New("no upstream endpoint responded")

// Fetcher pulls one payload from the alarm host. Log endpoints are tried in
// priority order and the first HTTP 200 wins; the XML feed is the fallback.
type Fetcher struct {
	httpClient *resty.Client
	logURLs    []string
	xmlURL     string
	logger     *zap.Logger
}

// NewFetcher creates an upstream fetcher
func NewFetcher(logURLs []string, xmlURL string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/plain, application/xml, text/html;q=0.9, */*;q=0.5")

	return &Fetcher{
		httpClient: client,
		logURLs:    logURLs,
		xmlURL:     xmlURL,
		logger:     logger,
	}
}

// Fetch returns the first payload any endpoint serves
func (f *Fetcher) Fetch(ctx context.Context) (models.Payload, error) {
	for _, url := range f.logURLs {
		p, err := f.get(ctx, url)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return models.Payload{}, ctx.Err()
		}
		f.logger.Debug("Log endpoint unavailable", zap.String("url", url), zap.Error(err))
	}

	if f.xmlURL == "" {
		return models.Payload{}, ErrNoUpstream
	}
	p, err := f.get(ctx, f.xmlURL)
	if err != nil {
		return models.Payload{}, fmt.Errorf("%w: %v", ErrNoUpstream, err)
	}
	return p, nil
}

// FetchXML pulls only the XML alarm feed (polling-only deployments)
func (f *Fetcher) FetchXML(ctx context.Context) (models.Payload, error) {
	p, err := f.get(ctx, f.xmlURL)
	if err != nil {
		return models.Payload{}, fmt.Errorf("%w: %v", ErrNoUpstream, err)
	}
	return p, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (models.Payload, error) {
	resp, err := f.httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return models.Payload{}, fmt.Errorf("failed to GET %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return models.Payload{}, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode())
	}

	body := resp.String()
	return models.Payload{
		Kind:      parser.Detect(resp.Header().Get("Content-Type"), body),
		Body:      body,
		Source:    url,
		FetchedAt: time.Now(),
	}, nil
}
