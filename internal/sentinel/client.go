package sentinel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrUnauthorized   = errors.New("unauthorized access, check your client ID and secret")
	ErrNoCredentials  = errors.New("missing Sentinel Hub credentials: COPERNICUS_CLIENT_ID and COPERNICUS_CLIENT_SECRET")
	ErrRequestFailed  = errors.New("sentinel hub request failed")
	ErrImageNotFound  = errors.New("image not found")
	ErrNoAcquisitions = errors.New("no acquisition dates found within specified date range and cloud cover limit")
)

const DateLayout = "2006-01-02"

type Credentials struct {
	ClientID     string
	ClientSecret string
}

type ClientConfig struct {
	TokenURL    string
	ProcessURL  string
	CatalogURL  string
	Collection  string
	Credentials []Credentials
	Retries     int
	RetryDelay  time.Duration
	// HTTPClient is used for token and API requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Client talks to the Sentinel Hub Catalog and Process APIs. Every
// credential pair gets its own OAuth2 client; when one pair fails the next
// one is tried.
type Client struct {
	cfg     ClientConfig
	clients []*http.Client
}

func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	if cfg.TokenURL == "" || cfg.ProcessURL == "" || cfg.CatalogURL == "" {
		return nil, errors.New("token, process and catalog URLs are required")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.Collection == "" {
		cfg.Collection = "sentinel-2-l2a"
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	c := &Client{cfg: cfg}
	for _, cred := range cfg.Credentials {
		oauthConfig := &clientcredentials.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		c.clients = append(c.clients, oauthConfig.Client(ctx))
	}
	return c, nil
}

// NewClientFromConfig builds a client from the application configuration.
func NewClientFromConfig(ctx context.Context, cfg *properties.Config) (*Client, error) {
	s := cfg.Sentinel
	if len(s.ClientIDs) != len(s.ClientSecrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	creds := make([]Credentials, len(s.ClientIDs))
	for i := range s.ClientIDs {
		creds[i] = Credentials{ClientID: s.ClientIDs[i], ClientSecret: s.ClientSecrets[i]}
	}
	return NewClient(ctx, ClientConfig{
		TokenURL:    s.TokenURL,
		ProcessURL:  s.ProcessURL,
		CatalogURL:  s.CatalogURL,
		Collection:  s.Collection,
		Credentials: creds,
		Retries:     s.Retries,
		RetryDelay:  s.RetryDelay,
	})
}

// post sends body to url, retrying failed attempts, and rotating through the
// configured credentials until one of them succeeds.
func (c *Client) post(ctx context.Context, url string, body []byte, accept string) ([]byte, error) {
	var lastErr error
	for i, httpClient := range c.clients {
		content, err := c.postWithRetry(ctx, httpClient, url, body, accept)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.WithError(err).WithField("credential", i).Warn("sentinel hub request failed, trying next credential")
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) postWithRetry(ctx context.Context, httpClient *http.Client, url string, body []byte, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		content, retry, err := c.doPost(ctx, httpClient, url, body, accept)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{"attempt": attempt, "url": url}).WithError(err).Warn("attempt failed")
		if attempt == c.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to request %s after %d attempts: %w", url, c.cfg.Retries, lastErr)
}

// doPost performs a single request. The boolean result reports whether the
// failure is worth retrying.
func (c *Client) doPost(ctx context.Context, httpClient *http.Client, url string, body []byte, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && (retrieveErr.Response.StatusCode == http.StatusUnauthorized || retrieveErr.Response.StatusCode == http.StatusBadRequest) {
			return nil, false, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return content, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrImageNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(content)))
	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(content)))
	}
}
