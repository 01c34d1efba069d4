package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sabarim/composerdata/internal/auth"
	"github.com/sabarim/composerdata/internal/config"
	"github.com/sabarim/composerdata/internal/window"
)

var (
	// ErrAuthRevoked indicates the provider rejected the session mid-run.
	// Every subsequent request would fail the same way, so the whole run
	// must abort.
	ErrAuthRevoked = errors.New("authentication revoked")

	// ErrUnavailable indicates one symphony/window could not be fetched
	// after exhausting retries. The unit is skipped; the run continues.
	ErrUnavailable = errors.New("symphony data unavailable")
)

// Options tunes retry and pacing behaviour.
type Options struct {
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client fetches performance series from the Composer API. All requests are
// signed with the session established at startup; the client holds no other
// mutable state and is safe for reuse across symphonies and windows.
type Client struct {
	liveBaseURL     string
	backtestBaseURL string
	session         *auth.Session
	httpClient      *http.Client
	limiter         *rate.Limiter
	maxRetries      int
	retryDelay      time.Duration
	log             zerolog.Logger
}

// NewClient creates a fetch client for the given session and endpoints.
func NewClient(session *auth.Session, liveBaseURL, backtestBaseURL string, opts Options, log zerolog.Logger) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Client{
		liveBaseURL:     liveBaseURL,
		backtestBaseURL: backtestBaseURL,
		session:         session,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		limiter:         rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		maxRetries:      opts.MaxRetries,
		retryDelay:      opts.RetryDelay,
		log:             log,
	}
}

// FetchSymphony fetches the live and backtest series for one symphony over
// one window and merges them into dated performance points. A side that
// stays unavailable after retries is tolerated as long as the other side
// produced data; when both sides fail the unit is reported unavailable. An
// authentication rejection on either side aborts immediately.
func (c *Client) FetchSymphony(ctx context.Context, ref config.SymphonyRef, win window.Window) ([]SeriesPoint, error) {
	live, liveErr := c.fetchLive(ctx, ref.ID)
	if liveErr != nil {
		if errors.Is(liveErr, ErrAuthRevoked) {
			return nil, liveErr
		}
		c.log.Warn().Err(liveErr).Str("symphony", ref.Name).Msg("live series unavailable")
	}

	backtest, backtestErr := c.fetchBacktest(ctx, ref.ID, win)
	if backtestErr != nil {
		if errors.Is(backtestErr, ErrAuthRevoked) {
			return nil, backtestErr
		}
		c.log.Warn().Err(backtestErr).Str("symphony", ref.Name).Msg("backtest series unavailable")
	}

	if liveErr != nil && backtestErr != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnavailable, ref.Name, ref.ID)
	}

	return mergeSeries(live, backtest, ref.ID, win), nil
}

// fetchLive retrieves the account's live portfolio history for a symphony.
func (c *Client) fetchLive(ctx context.Context, symphonyID string) (*liveSeries, error) {
	url := fmt.Sprintf("%s/portfolio/accounts/%s/symphonies/%s", c.liveBaseURL, c.session.AccountID(), symphonyID)

	var series liveSeries
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// fetchBacktest retrieves the simulated series for a symphony over a window.
func (c *Client) fetchBacktest(ctx context.Context, symphonyID string, win window.Window) (*backtestResult, error) {
	url := fmt.Sprintf("%s/public/symphonies/%s/backtest", c.backtestBaseURL, symphonyID)
	payload := backtestRequest{
		Capital:         backtestCapital,
		StartDate:       win.Start.Format(window.DateFormat),
		EndDate:         win.End.Format(window.DateFormat),
		Broker:          "apex",
		SlippagePercent: 0.0005,
		BacktestVersion: "v2",
		ApplyRegFee:     true,
		ApplyTafFee:     true,
	}

	var result backtestResult
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON executes one signed request with bounded retries and doubling
// backoff. 429 and 5xx class responses and transport errors are transient;
// 401/403 is fatal; any other 4xx is a permanent request error and is not
// retried.
func (c *Client) doJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		done, err := c.attempt(ctx, method, url, body, out)
		if done {
			return err
		}
		lastErr = err
		c.log.Debug().Err(err).Int("attempt", attempt).Str("url", url).Msg("request failed, will retry")

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", c.maxRetries, lastErr)
}

// attempt performs a single request. The returned bool reports whether the
// outcome is final (success, fatal, or permanent) as opposed to transient.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return true, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.session.Sign(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, fmt.Errorf("failed to decode response: %w", err)
		}
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("%w: status %d", ErrAuthRevoked, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("status %d", resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
}
