// Package mirror talks to the optional cloud feed mirror: local writes
// are merge-written to a per-user keyed document per item, and remote
// changes are pulled back and applied under last-writer-wins.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

// Options configures the mirror client. BaseURL empty means mirroring is
// disabled and New returns nil.
type Options struct {
	BaseURL    string
	UserID     string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// PushRPS bounds outbound push rate; <= 0 means 5/s.
	PushRPS float64
}

// Client pushes feed items to the remote mirror with bounded retry and
// backoff. Pushes are best-effort: a failed or slow mirror write never
// blocks local store visibility.
type Client struct {
	baseURL    string
	userID     string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
}

// New builds a client, or nil when no base URL is configured.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	rps := opts.PushRPS
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:    baseURL,
		userID:     opts.UserID,
		token:      opts.Token,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Push merge-writes the full item document to the mirror.
func (c *Client) Push(ctx context.Context, it models.FeedItem) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(it)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/users/%s/feed/%s", c.baseURL, c.userID, it.ID)

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if werr := sleepContext(ctx, c.retryDelay(attempt+1, "")); werr != nil {
					return werr
				}
				continue
			}
			return err
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil
		}
		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if werr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); werr != nil {
				return werr
			}
			continue
		}
		return fmt.Errorf("mirror push failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

// PushAsync fires a Push in the background and records the result. This
// is the hook the processor calls after a committed local write.
func (c *Client) PushAsync(ctx context.Context, it models.FeedItem) {
	go func() {
		if err := c.Push(ctx, it); err != nil {
			telemetry.MirrorPushTotal.WithLabelValues("error").Inc()
			logger.Warn("mirror_push_failed", "id", it.ID, "error", err)
			return
		}
		telemetry.MirrorPushTotal.WithLabelValues("ok").Inc()
		logger.Debug("mirror_push_ok", "id", it.ID)
	}()
}

// Changes pulls remote-origin items with UpdatedAt strictly greater
// than since.
func (c *Client) Changes(ctx context.Context, since int64) ([]models.FeedItem, error) {
	url := fmt.Sprintf("%s/v1/users/%s/feed/changes?since=%d", c.baseURL, c.userID, since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror changes failed: status=%d", resp.StatusCode)
	}
	var out struct {
		Items []models.FeedItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode mirror changes: %w", err)
	}
	return out.Items, nil
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if ra := parseRetryAfterSeconds(retryAfterHeader); ra > 0 {
		if ra > c.maxDelay {
			return c.maxDelay
		}
		return ra
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
