// Package streetview fetches street-level photographs from the Street View
// static image API and persists them to the local filesystem.
package streetview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
	"github.com/chicagolots/lotbot/internal/metrics"
)

// DefaultBaseURL is the Street View static image endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/streetview"

// Config controls the imagery endpoint and local image directory.
type Config struct {
	BaseURL   string
	APIKey    string
	ImageSize string
	SaveDir   string
	// Heading is an optional camera heading in degrees; negative means unset.
	Heading int
	Timeout time.Duration
}

// Client implements lotbot.ImageAcquirer against the Street View API.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	imageSize string
	saveDir   string
	heading   int
	clock     lotbot.Clock
	logger    *zap.Logger
}

// New constructs a Client and ensures the save directory exists.
func New(cfg Config, clock lotbot.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("image API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "600x400"
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = "images"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o750); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Client{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		imageSize: cfg.ImageSize,
		saveDir:   cfg.SaveDir,
		heading:   cfg.Heading,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Acquire issues one imagery request for the coordinates and writes the
// returned photograph under the save directory. There is no internal retry:
// missing imagery is deterministic for given coordinates.
func (c *Client) Acquire(ctx context.Context, pin string, coords lotbot.Coordinates) (path string, err error) {
	defer func() {
		switch {
		case err == nil:
			metrics.ImageFetch("ok")
		case errors.As(err, new(*lotbot.StorageError)):
			metrics.ImageFetch("storage_error")
		default:
			metrics.ImageFetch("unavailable")
		}
	}()

	q := url.Values{}
	q.Set("size", c.imageSize)
	q.Set("location", formatLocation(coords))
	q.Set("key", c.apiKey)
	q.Set("return_error_code", "true")
	if c.heading >= 0 {
		q.Set("heading", strconv.Itoa(c.heading))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", &lotbot.ImageUnavailableError{Coordinates: coords, Reason: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &lotbot.ImageUnavailableError{Coordinates: coords, Reason: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return "", &lotbot.ImageUnavailableError{
			Coordinates: coords,
			Reason:      fmt.Sprintf("imagery status %d", resp.StatusCode),
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "image") {
		// A 200 with a textual payload is the "no imagery here" answer.
		return "", &lotbot.ImageUnavailableError{
			Coordinates: coords,
			Reason:      fmt.Sprintf("unexpected content type %q", contentType),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &lotbot.ImageUnavailableError{Coordinates: coords, Reason: err.Error()}
	}

	// Timestamped filenames so repeated acquisitions for one PIN never
	// collide, down to sub-second spacing.
	now := c.clock.Now()
	filename := fmt.Sprintf("%s_%s_%09d.jpg", pin, now.Format("20060102_150405"), now.Nanosecond())
	path = filepath.Join(c.saveDir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", &lotbot.StorageError{Path: path, Err: err}
	}

	c.logger.Debug("saved street view image",
		zap.String("pin", pin),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return path, nil
}

func formatLocation(coords lotbot.Coordinates) string {
	return strconv.FormatFloat(coords.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(coords.Longitude, 'f', -1, 64)
}
