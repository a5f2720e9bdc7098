package catalog

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"cardscan/internal/imagehash"
	"cardscan/internal/services"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxImageBytes       = 16 << 20
)

// Fetcher downloads a reference image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher fetches images over HTTP with a per-request timeout.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewHTTPFetcher constructs a fetcher. A non-positive timeout uses 10s.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		userAgent: strings.TrimSpace(userAgent),
	}
}

// Fetch downloads and decodes the image at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "fetch", "Invalid image URL", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "catalog", "fetch", "Image download timed out", err)
		}
		return nil, services.Wrap(services.ErrExternalService, "catalog", "fetch", "Image download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrExternalService, "catalog", "fetch", fmt.Sprintf("Image host returned %s", resp.Status), nil)
	}

	img, err := imagehash.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "catalog", "fetch", "Image download timed out", err)
		}
		return nil, services.Wrap(services.ErrExternalService, "catalog", "fetch", "Image could not be decoded", err)
	}
	return img, nil
}
