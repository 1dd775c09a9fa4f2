package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/veldtlabs/bannerlake/pkg/normalize"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxTries       = 4
)

type APIConfig struct {
	Logger *slog.Logger
	URL    string

	// Optional with defaults.
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	MaxTries       uint
}

func (c *APIConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	return nil
}

// APISource polls a REST endpoint returning a JSON array of event objects.
// Transport failures and server errors are retried with exponential backoff;
// client errors are permanent. An empty array is a valid empty batch.
type APISource struct {
	log *slog.Logger
	cfg APIConfig
}

func NewAPISource(cfg APIConfig) (*APISource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &APISource{log: cfg.Logger, cfg: cfg}, nil
}

func (s *APISource) Fetch(ctx context.Context) ([]normalize.Record, error) {
	attempt := 0
	records, err := backoff.Retry(ctx, func() ([]normalize.Record, error) {
		if attempt > 0 {
			s.log.Warn("failed to fetch events, retrying", "attempt", attempt, "url", s.cfg.URL)
		}
		attempt++
		return s.fetchOnce(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.cfg.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("fetch events from %s: %w", s.cfg.URL, err)
	}
	s.log.Debug("fetched events", "url", s.cfg.URL, "records", len(records))
	return records, nil
}

func (s *APISource) fetchOnce(ctx context.Context) ([]normalize.Record, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response body: %w", err))
	}

	records := make([]normalize.Record, 0, len(raw))
	for _, obj := range raw {
		rec := make(normalize.Record, len(obj))
		for k, v := range obj {
			if s, ok := stringify(v); ok {
				rec[k] = s
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// stringify renders a decoded JSON value as the string the normalizer
// expects. Numbers format without an exponent so ids survive round-tripping.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
