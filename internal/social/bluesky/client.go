// Package bluesky publishes posts to Bluesky over the xrpc HTTP API.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

// DefaultBaseURL is the public Bluesky xrpc endpoint.
const DefaultBaseURL = "https://bsky.social/xrpc"

const (
	postCollection = "app.bsky.feed.post"
	imageAltText   = "Street View image of property"
)

// Config holds the account credentials and endpoint for the client.
type Config struct {
	BaseURL     string
	Handle      string
	AppPassword string
	Timeout     time.Duration
}

// session is the credential state produced by a successful authentication.
type session struct {
	accessJWT string
	did       string
}

// Client implements lotbot.SocialPublisher against Bluesky.
type Client struct {
	client      *http.Client
	baseURL     string
	handle      string
	appPassword string
	clock       lotbot.Clock
	logger      *zap.Logger

	// session is nil until Authenticate succeeds. The client is owned by a
	// single goroutine, so no locking.
	session *session
}

// New constructs a Client. No network call is made: the session is
// established lazily on first publish.
func New(cfg Config, clock lotbot.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.Handle == "" || cfg.AppPassword == "" {
		return nil, fmt.Errorf("social handle and app password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		handle:      cfg.Handle,
		appPassword: cfg.AppPassword,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Authenticate exchanges the handle and app password for a bearer token and
// account DID. Safe to call repeatedly; any existing session is overwritten.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"identifier": c.handle,
		"password":   c.appPassword,
	})
	if err != nil {
		return &lotbot.AuthError{Handle: c.handle, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/com.atproto.server.createSession", bytes.NewReader(body))
	if err != nil {
		return &lotbot.AuthError{Handle: c.handle, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &lotbot.AuthError{Handle: c.handle, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return &lotbot.AuthError{Handle: c.handle, Err: fmt.Errorf("createSession status %d", resp.StatusCode)}
	}

	var out struct {
		AccessJwt string `json:"accessJwt"`
		Did       string `json:"did"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &lotbot.AuthError{Handle: c.handle, Err: fmt.Errorf("decode createSession response: %w", err)}
	}
	if out.AccessJwt == "" || out.Did == "" {
		return &lotbot.AuthError{Handle: c.handle, Err: fmt.Errorf("createSession response missing token or did")}
	}

	c.session = &session{accessJWT: out.AccessJwt, did: out.Did}
	c.logger.Info("authenticated with bluesky", zap.String("handle", c.handle))
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	if c.session != nil {
		return nil
	}
	return c.Authenticate(ctx)
}

// UploadImage uploads the file at path as a JPEG blob and returns the opaque
// blob reference assigned by the platform.
func (c *Client) UploadImage(ctx context.Context, path string) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, &lotbot.UploadError{Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &lotbot.UploadError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, &lotbot.UploadError{Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Authorization", "Bearer "+c.session.accessJWT)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &lotbot.UploadError{Path: path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, &lotbot.UploadError{Path: path, Err: fmt.Errorf("uploadBlob status %d", resp.StatusCode)}
	}

	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &lotbot.UploadError{Path: path, Err: fmt.Errorf("decode uploadBlob response: %w", err)}
	}
	if len(out.Blob) == 0 {
		return nil, &lotbot.UploadError{Path: path, Err: fmt.Errorf("uploadBlob response missing blob")}
	}
	return out.Blob, nil
}

// Publish creates a post, attaching the image at imagePath when non-empty.
// An upload failure degrades the post to text-only rather than aborting.
func (c *Client) Publish(ctx context.Context, text, imagePath string) (string, error) {
	if err := c.ensureSession(ctx); err != nil {
		return "", err
	}

	record := map[string]any{
		"$type":     postCollection,
		"text":      text,
		"createdAt": c.clock.Now().UTC().Format(time.RFC3339),
	}

	if imagePath != "" {
		blob, err := c.UploadImage(ctx, imagePath)
		if err != nil {
			c.logger.Warn("image upload failed, posting text-only",
				zap.String("path", imagePath),
				zap.Error(err),
			)
		} else {
			record["embed"] = map[string]any{
				"$type": "app.bsky.embed.images",
				"images": []map[string]any{{
					"alt":   imageAltText,
					"image": blob,
				}},
			}
		}
	}

	body, err := json.Marshal(map[string]any{
		"repo":       c.session.did,
		"collection": postCollection,
		"record":     record,
	})
	if err != nil {
		return "", &lotbot.PostError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/com.atproto.repo.createRecord", bytes.NewReader(body))
	if err != nil {
		return "", &lotbot.PostError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.session.accessJWT)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &lotbot.PostError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &lotbot.PostError{Err: fmt.Errorf("createRecord status %d: %s", resp.StatusCode, msg)}
	}

	var out struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &lotbot.PostError{Err: fmt.Errorf("decode createRecord response: %w", err)}
	}

	c.logger.Info("created post", zap.String("uri", out.URI))
	return out.URI, nil
}

// FormatCaption renders the post text for a property.
func (c *Client) FormatCaption(pin, address string) string {
	return fmt.Sprintf("%s\nPIN: %s", address, pin)
}
