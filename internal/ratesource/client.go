package ratesource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/models"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

// Client is a rate service REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new rate service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AllRates fetches the full rate table.
func (c *Client) AllRates(ctx context.Context) ([]models.Rate, error) {
	return c.rates(ctx, c.baseURL+"/rates")
}

// Rates fetches the candidates for one lane directly, bypassing any poller.
func (c *Client) Rates(ctx context.Context, origin, destination string) ([]models.Rate, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	return c.rates(ctx, c.baseURL+"/rates?"+q.Encode())
}

func (c *Client) rates(ctx context.Context, u string) ([]models.Rate, error) {
	var body any
	if err := c.get(ctx, u, &body); err != nil {
		return nil, err
	}
	// Both a bare array and {"rates": [...]} are served by rate providers.
	if m, ok := body.(map[string]any); ok {
		body = m["rates"]
	}
	return validate.Rates(body), nil
}

func (c *Client) get(ctx context.Context, u string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperr.Wrap(apperr.Service, "rate request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Wrap(apperr.Transient, "rate table unavailable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFoundf("rate set not found")
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Wrap(apperr.Transient, "rate table unavailable",
			fmt.Errorf("rate service status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	case resp.StatusCode != http.StatusOK:
		return apperr.Wrap(apperr.Service, "rate service rejected request",
			fmt.Errorf("rate service status %d", resp.StatusCode))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return apperr.Wrap(apperr.Service, "malformed rate response", err)
	}
	return nil
}

// Ping checks connectivity to the rate service.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate service ping failed with status %d", resp.StatusCode)
	}
	return nil
}
