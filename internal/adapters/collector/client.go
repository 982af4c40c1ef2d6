// Package collector is the HTTP client for the shell's review collector
// service, which fronts the actual providers. One Fetch is one synchronous
// round trip per hotel: all sources queried in parallel, each with
// client-side rate limiting and bounded retries.
package collector

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"repscore/internal/adapters/observability"
	"repscore/internal/domain"
)

var (
	ErrNoData       = errors.New("collector: no data for hotel")
	ErrUnauthorized = errors.New("collector: unauthorized")
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("collector base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// reading is the collector service's wire shape for one source.
type reading struct {
	Score *float64 `json:"score"`
	Count *int     `json:"count"`
}

// Fetch queries every known source in parallel. A source that has no data
// or fails transiently yields an absent reading; only cancellation aborts
// the whole fetch. Callers decide what an all-absent result means.
func (c *Client) Fetch(ctx context.Context, h domain.Hotel) (map[domain.Source]domain.RawReading, error) {
	out := make(map[domain.Source]domain.RawReading, len(domain.KnownSources()))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range domain.KnownSources() {
		src := src
		g.Go(func() error {
			rd, err := c.fetchSource(gctx, src, h)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Per-source failure degrades to an absent reading; the
				// engine distinguishes absence from zero structurally.
				log.Warn().Err(err).Str("source", string(src)).Int64("hotel", h.ID).Msg("source fetch failed")
				return nil
			}
			mu.Lock()
			out[src] = rd
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchSource(ctx context.Context, src domain.Source, h domain.Hotel) (domain.RawReading, error) {
	name := h.Name
	if sn, ok := h.SourceNames[src]; ok && sn != "" {
		name = sn
	}
	q := url.Values{"name": {name}}
	if h.City != nil {
		q.Set("city", *h.City)
	}
	if h.State != nil {
		q.Set("state", *h.State)
	}
	u := fmt.Sprintf("%s/v1/sources/%s/rating?%s", c.base, src, q.Encode())

	var rd reading
	if err := c.get(ctx, string(src), u, &rd); err != nil {
		return domain.RawReading{}, err
	}
	return domain.RawReading{Score: rd.Score, Count: rd.Count}, nil
}

// get performs a GET with client-side rate limiting, retries, and JSON
// decode into out. Retries on 429 and transient 5xx, honoring Retry-After
// when provided.
func (c *Client) get(ctx context.Context, endpoint, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "repscore/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveCollector(endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent, http.StatusNotFound:
			resp.Body.Close()
			return ErrNoData

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("collector %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if
// absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles per attempt (200ms, 400ms, 800ms...) with up to +50%
// jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
