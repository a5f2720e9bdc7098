package tcgapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cardscan/internal/catalog"
	"cardscan/internal/config"
	"cardscan/internal/logging"
	"cardscan/internal/services"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.pokemontcg.io/v2"
	// FuzzyPageSize is the page size used by SearchFuzzy.
	FuzzyPageSize = 20
	// MaxPageSize is the largest page the API serves.
	MaxPageSize = 250

	defaultAttempts = 3
	maxErrorBody    = 4 << 10
)

// Options configures a Client.
type Options struct {
	APIKey            string
	BaseURL           string
	UserAgent         string
	PageSize          int
	Timeout           time.Duration
	Attempts          int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	// Sleep waits between retries; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to the Pokémon TCG API.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	pageSize   int
	attempts   int
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

var _ catalog.Source = (*Client)(nil)

// New builds a client. An empty API key is allowed; the API then applies its
// anonymous rate limits.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "tcgapi", "new", "Invalid base url", err)
	}
	if opts.PageSize <= 0 || opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    base,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		pageSize:   opts.PageSize,
		attempts:   opts.Attempts,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		sleep:      opts.Sleep,
		logger:     logging.NewComponentLogger(logger, "tcgapi"),
	}, nil
}

// NewFromConfig builds a client from the [catalog] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "tcgapi", "new", "Config is required", nil)
	}
	return New(Options{
		APIKey:            cfg.Catalog.APIKey,
		BaseURL:           cfg.Catalog.BaseURL,
		UserAgent:         cfg.Catalog.UserAgent,
		PageSize:          cfg.Catalog.PageSize,
		Timeout:           time.Duration(cfg.Catalog.RequestTimeout) * time.Second,
		Attempts:          cfg.Catalog.MaxRetries,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
	}, logger)
}

// Page is one page of card results.
type Page struct {
	Data       []Card `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Count      int    `json:"count"`
	TotalCount int    `json:"totalCount"`
}

type singleCard struct {
	Data Card `json:"data"`
}

// SearchByName finds cards whose name is exactly name, optionally narrowed to
// a set name.
func (c *Client) SearchByName(ctx context.Context, name, setName string) ([]Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "tcgapi", "search", "Card name is required", nil)
	}
	query := fmt.Sprintf(`name:"%s"`, escapeQuoted(name))
	if set := strings.TrimSpace(setName); set != "" {
		query += fmt.Sprintf(` set.name:"%s"`, escapeQuoted(set))
	}
	page, err := c.query(ctx, query, 0, 0)
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// SearchFuzzy finds cards whose name starts with name.
func (c *Client) SearchFuzzy(ctx context.Context, name string) ([]Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "tcgapi", "search", "Card name is required", nil)
	}
	page, err := c.query(ctx, "name:"+wildcardTerm(name)+"*", 0, FuzzyPageSize)
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// GetCard fetches a card by id. Unknown ids return services.ErrNotFound.
func (c *Client) GetCard(ctx context.Context, id string) (*Card, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "tcgapi", "get card", "Card id is required", nil)
	}
	var payload singleCard
	if err := c.get(ctx, "/cards/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload.Data, nil
}

// ListCards returns one page of the full card list. page starts at 1;
// pageSize <= 0 uses the configured page size.
func (c *Client) ListCards(ctx context.Context, page, pageSize int) (*Page, error) {
	return c.query(ctx, "", page, pageSize)
}

// AllCards pages through the card list until an empty page or limit cards
// (limit <= 0 means everything).
func (c *Client) AllCards(ctx context.Context, limit int) ([]Card, error) {
	var out []Card
	for page := 1; ; page++ {
		result, err := c.ListCards(ctx, page, 0)
		if err != nil {
			return out, err
		}
		if len(result.Data) == 0 {
			return out, nil
		}
		out = append(out, result.Data...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if result.TotalCount > 0 && len(out) >= result.TotalCount {
			return out, nil
		}
		c.logger.Debug("card page fetched",
			logging.Int("page", page),
			logging.Int("current", len(out)),
			logging.Int("total", result.TotalCount),
		)
	}
}

// References implements catalog.Source.
func (c *Client) References(ctx context.Context, limit int) ([]catalog.Reference, error) {
	cards, err := c.AllCards(ctx, limit)
	if err != nil && len(cards) == 0 {
		return nil, err
	}
	if err != nil {
		logging.WarnWithContext(c.logger, "card listing stopped early", "catalog_listing_partial",
			logging.Error(err),
			logging.Int("current", len(cards)),
			logging.String(logging.FieldErrorHint, "rerun the build to continue"),
			logging.String(logging.FieldImpact, "catalog build covers a partial card list"),
		)
	}
	refs := make([]catalog.Reference, 0, len(cards))
	for _, card := range cards {
		refs = append(refs, card.Reference())
	}
	return refs, nil
}

func (c *Client) query(ctx context.Context, q string, page, pageSize int) (*Page, error) {
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize <= 0 && page > 0 {
		pageSize = c.pageSize
	}
	if pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(pageSize))
	}
	var result Page
	if err := c.get(ctx, "/cards", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// get performs a rate-limited GET with retries. Timeouts, 429, and 5xx
// responses retry after 2^attempt seconds.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.Debug("retrying api request",
				logging.Int("attempt", attempt+1),
				logging.Duration("wait", wait),
				logging.String("query", params.Get("q")),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return services.Wrap(services.ErrTimeout, "tcgapi", "request", "Request cancelled", err)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return services.Wrap(services.ErrTimeout, "tcgapi", "request", "Rate limiter wait cancelled", err)
		}

		retry, err := c.do(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	logging.WarnWithContext(c.logger, "api request failed after retries", "tcgapi_retries_exhausted",
		logging.Error(lastErr),
		logging.Int("attempt", c.attempts),
		logging.String(logging.FieldErrorHint, "check network access and the POKEMONTCG_IO_API_KEY rate limit"),
		logging.String(logging.FieldImpact, "card data unavailable for this request"),
	)
	return lastErr
}

func (c *Client) do(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "tcgapi", "request", "Build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, services.Wrap(services.ErrTimeout, "tcgapi", "request", "Request cancelled", err)
		}
		if isTimeout(err) {
			return true, services.Wrap(services.ErrTimeout, "tcgapi", "request", "Request timed out", err)
		}
		return true, services.Wrap(services.ErrExternalService, "tcgapi", "request", "Request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, services.Wrap(services.ErrExternalService, "tcgapi", "decode", "Invalid response body", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, services.Wrap(services.ErrNotFound, "tcgapi", "request", "Card not found", nil)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return true, services.Wrap(services.ErrTimeout, "tcgapi", "request", statusMessage(resp), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, services.Wrap(services.ErrExternalService, "tcgapi", "request", statusMessage(resp), nil)
	default:
		return false, services.Wrap(services.ErrExternalService, "tcgapi", "request", statusMessage(resp), nil)
	}
}

func statusMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("API returned %d", resp.StatusCode)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func escapeQuoted(value string) string {
	return strings.ReplaceAll(value, `"`, `\"`)
}

// wildcardTerm escapes spaces so a multi-word prefix stays one term.
func wildcardTerm(value string) string {
	return strings.ReplaceAll(value, " ", `\ `)
}
