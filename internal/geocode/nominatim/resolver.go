// Package nominatim resolves street addresses to coordinates via the
// Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
	"github.com/chicagolots/lotbot/internal/metrics"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Config controls the resolver's endpoint and retry schedule.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Policy    lotbot.BackoffPolicy
}

// Resolver implements lotbot.LocationResolver against Nominatim.
type Resolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
	policy    lotbot.BackoffPolicy
	sleep     lotbot.SleepFunc
	logger    *zap.Logger
}

// New constructs a Resolver.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chicago-lots-bot"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = lotbot.DefaultBackoffPolicy()
	}
	return &Resolver{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		policy:    cfg.Policy,
		sleep:     lotbot.Sleep,
		logger:    logger,
	}
}

// failure classification for one lookup attempt.
type failKind int

const (
	failTimeout failKind = iota
	failNoMatch
	failUnavailable
)

var errNoMatch = errors.New("no geocoding result")

// Resolve attempts geocoding up to the policy's attempt budget. Timeouts
// back off exponentially, empty results pause briefly, and an unavailable
// service aborts immediately.
func (r *Resolver) Resolve(ctx context.Context, address string) (lotbot.Coordinates, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		attempts++
		coords, err := r.lookup(ctx, address)
		if err == nil {
			metrics.GeocodeAttempt("ok")
			return coords, nil
		}
		lastErr = err

		switch classify(err) {
		case failUnavailable:
			metrics.GeocodeAttempt("unavailable")
			r.logger.Error("geocoding service unavailable", zap.String("address", address), zap.Error(err))
			return lotbot.Coordinates{}, &lotbot.GeocodingError{Address: address, Attempts: attempts, Err: err}
		case failTimeout:
			metrics.GeocodeAttempt("timeout")
			r.logger.Warn("geocoding timed out",
				zap.String("address", address),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", r.policy.MaxAttempts),
			)
			if attempt < r.policy.MaxAttempts-1 {
				if err := r.sleep(ctx, r.policy.Backoff(attempt)); err != nil {
					return lotbot.Coordinates{}, &lotbot.GeocodingError{Address: address, Attempts: attempts, Err: err}
				}
			}
		case failNoMatch:
			metrics.GeocodeAttempt("no_match")
			if attempt < r.policy.MaxAttempts-1 {
				if err := r.sleep(ctx, r.policy.Pause); err != nil {
					return lotbot.Coordinates{}, &lotbot.GeocodingError{Address: address, Attempts: attempts, Err: err}
				}
			}
		}
	}

	return lotbot.Coordinates{}, &lotbot.GeocodingError{Address: address, Attempts: attempts, Err: lastErr}
}

func (r *Resolver) lookup(ctx context.Context, address string) (lotbot.Coordinates, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return lotbot.Coordinates{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return lotbot.Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return lotbot.Coordinates{}, fmt.Errorf("geocode status %d", resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return lotbot.Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return lotbot.Coordinates{}, errNoMatch
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return lotbot.Coordinates{}, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return lotbot.Coordinates{}, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}
	return lotbot.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func classify(err error) failKind {
	if errors.Is(err, errNoMatch) {
		return failNoMatch
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failTimeout
	}
	// Refusals, 5xx responses and malformed payloads are not transient.
	return failUnavailable
}
