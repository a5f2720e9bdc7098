package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"cardscan/internal/catalog"
	"cardscan/internal/storage"
)

const apiCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase applies pending migrations to the database at path and
// reports the resulting schema version. A missing file is created.
func CheckDatabase(name, path string, schema storage.Schema) Result {
	version, err := storage.Migrate(path, schema)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d)", path, version)}
}

// CheckCatalogPopulated fails when the hash catalog holds no entries, since
// image matching cannot succeed until a build has run.
func CheckCatalogPopulated(ctx context.Context, path string) Result {
	const name = "Hash catalog"

	store, err := catalog.Open(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("stats failed (%v)", err)}
	}
	if stats.Total == 0 {
		return Result{Name: name, Detail: "empty (run cardscan catalog build)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d cards across %d sets", stats.Total, stats.Sets)}
}

// CheckCatalogAPI verifies that the remote card catalog answers a one-card
// listing. It makes a single attempt with a short timeout.
func CheckCatalogAPI(ctx context.Context, baseURL, apiKey, userAgent string) Result {
	const name = "Card catalog API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: apiCheckTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/cards?pageSize=1", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeRequestError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		detail := "Reachable"
		if strings.TrimSpace(apiKey) == "" {
			detail = "Reachable (no api key; low rate limit)"
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{Name: name, Detail: "rate limited (set catalog.api_key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

func summarizeRequestError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return fmt.Sprintf("check failed (%v)", err)
}
