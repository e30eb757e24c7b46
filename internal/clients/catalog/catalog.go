// Package catalog is the HTTP client for the medication catalog service.
// The order service only needs price and availability at order time.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mediguard/order/internal/service/errs"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/medication"
	"github.com/spf13/viper"
)

// Client resolves medications against the catalog service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a catalog client from viper configuration.
func NewClient() *Client {
	timeoutSeconds := viper.GetInt("clients.catalog.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 5
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		baseURL: viper.GetString("clients.catalog.base_url"),
	}
}

type resolveResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	IsAvailable bool   `json:"isAvailable"`
}

// Resolve looks up a medication by id. Unknown medications map to a
// not-found business error so creation fails before any write.
func (c *Client) Resolve(ctx context.Context, medicationID string) (*medication.Medication, error) {
	url := fmt.Sprintf("%s/api/medication/%s", c.baseURL, medicationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call catalog service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errs.NotFound("medication %s not found", medicationID)
	default:
		return nil, fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	cur, err := currency.ParseCurrency(body.Currency)
	if err != nil {
		return nil, fmt.Errorf("catalog returned unknown currency %q: %w", body.Currency, err)
	}

	return &medication.Medication{
		ID:            body.ID,
		Name:          body.Name,
		PriceCents:    body.PriceCents,
		PriceCurrency: cur,
		IsAvailable:   body.IsAvailable,
	}, nil
}
