// Package acoustic pushes contacts to the Acoustic Campaign XML API.
package acoustic

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/Guizzs26/ctms-sync/pkg/metrics"
	"golang.org/x/oauth2"
)

const (
	methodAddRecipient  = "AddRecipient"
	methodInsertUpdate  = "InsertUpdateRelationalTable"
	maxResponseBodySize = 1 << 20
)

type Config struct {
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	ServerNumber      int
	MainTableID       int64
	NewsletterTableID int64
	Timeout           time.Duration
	// BaseURL overrides https://api-campaign-us-{ServerNumber}.goacoustic.com.
	BaseURL string
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return fmt.Sprintf("https://api-campaign-us-%d.goacoustic.com", c.ServerNumber)
}

// Client is a Deliverer for Acoustic. Access tokens are refreshed on demand
// from the configured refresh token.
type Client struct {
	http     *http.Client
	endpoint string
	cfg      Config
	metrics  *metrics.SyncMetrics
	logger   *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, m *metrics.SyncMetrics, l *slog.Logger) *Client {
	base := cfg.baseURL()
	oauth := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// The token source uses this client for refreshes as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	ts := oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:     httpClient,
		endpoint: base + "/XMLAPI",
		cfg:      cfg,
		metrics:  m,
		logger:   l.With("component", "acoustic"),
	}
}

// Push upserts the main-table recipient, then its newsletter rows.
// Errors wrapping models.ErrDeliveryRejected are rejections by Acoustic.
func (c *Client) Push(ctx context.Context, rec mapper.Record) error {
	body, err := addRecipientEnvelope(c.cfg.MainTableID, rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", methodAddRecipient, err)
	}
	if err := c.call(ctx, methodAddRecipient, body); err != nil {
		return err
	}

	if len(rec.Newsletters) == 0 {
		return nil
	}
	body, err = newsletterEnvelope(c.cfg.NewsletterTableID, rec.Newsletters)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", methodInsertUpdate, err)
	}
	return c.call(ctx, methodInsertUpdate, body)
}

func (c *Client) call(ctx context.Context, method string, payload []byte) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		c.metrics.ObserveRequest(method, status, time.Since(start))
	}()

	form := url.Values{"xml": {string(payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: acoustic unavailable: status %d", method, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s: status %d", models.ErrDeliveryRejected, method, resp.StatusCode)
	}

	var parsed response
	if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if problem := parsed.problem(); problem != "" {
		c.logger.Debug("Acoustic rejected request", "method", method, "problem", problem)
		return fmt.Errorf("%w: %s: %s", models.ErrDeliveryRejected, method, problem)
	}
	return nil
}
