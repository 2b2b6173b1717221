package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/utils"
)

// maxAuxBodyBytes bounds sitemap and robots.txt bodies
const maxAuxBodyBytes = 32 << 20

// Fetcher performs auxiliary GETs (sitemaps, robots.txt) with retry and backoff.
// Page fetches go through PageFetcher instead and never retry inline.
type Fetcher struct {
	client *http.Client
	cfg    config.FetchConfig
	log    *logrus.Entry
}

// NewFetcher creates a Fetcher
func NewFetcher(client *http.Client, cfg config.FetchConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{client: client, cfg: cfg, log: log}
}

// FetchWithRetry executes req, retrying transport errors, 5xx and 429 with exponential
// backoff and +/-10% jitter. On success the caller must close the response body.
// Other 4xx and unexpected statuses are returned immediately along with the response.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.cfg.MaxRetries, "delay": delay}).Warn("Retrying request...")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = err
			continue
		}

		code := resp.StatusCode
		switch {
		case code >= 200 && code < 300:
			return resp, nil
		case code >= 500:
			lastErr = fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, code)
		case code == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
		case code >= 400:
			return resp, fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
		default:
			return resp, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, code)
		}
		drain(resp)
	}

	reqLog.Errorf("All %d attempts failed. Last error: %v", f.cfg.MaxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff returns initial * 2^(attempt-1) capped at MaxRetryDelay, with jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.cfg.InitialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (f.cfg.MaxRetryDelay > 0 && delay > f.cfg.MaxRetryDelay) {
		delay = f.cfg.MaxRetryDelay
	}
	return jitter(delay)
}

// Get fetches rawURL with retries and returns the body, bounded to maxAuxBodyBytes
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			drain(resp)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	return body, nil
}

// jitter stretches d by up to 10%; it never shortens it
func jitter(d time.Duration) time.Duration {
	spread := int64(d) / 10
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(spread+1))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
