// Package shipping quotes carrier rates for a cart headed to an address.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

var ErrInvalidRate = errors.New("carrier returned an invalid rate")

// Carrier defaults substituted for items that carry no dimensions.
const (
	defaultLengthCm = 30
	defaultWidthCm  = 20
	defaultHeightCm = 10
	defaultWeightG  = 500
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// RateItem pairs a product's dimensions with the quantity being shipped.
type RateItem struct {
	Dimensions domain.Dimensions
	Quantity   int
}

type RateRequest struct {
	ToAddress domain.Address
	Items     []RateItem
	StoreID   string
}

type parcel struct {
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
	WeightG  float64 `json:"weight_g"`
}

type rateAPIRequest struct {
	ToAddress domain.Address `json:"to_address"`
	Parcel    parcel         `json:"parcel"`
	StoreID   string         `json:"store_id"`
}

type rateAPIResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// GetRate returns the shipping cost in minor units. Missing, non-numeric or
// negative quotes are a hard failure of checkout.
func (c *Client) GetRate(ctx context.Context, req RateRequest) (int64, error) {
	body, err := json.Marshal(rateAPIRequest{
		ToAddress: req.ToAddress,
		Parcel:    aggregateParcel(req.Items),
		StoreID:   req.StoreID,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal rate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create rate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("request shipping rate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("carrier rate API returned status %d", resp.StatusCode)
	}

	var rateResp rateAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&rateResp); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}

	amount, err := decimal.NewFromString(rateResp.Amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, rateResp.Amount)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRate, amount)
	}

	return amount.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

// aggregateParcel sums per-item dimensions into a single parcel, applying
// carrier defaults for items with no recorded dimensions.
func aggregateParcel(items []RateItem) parcel {
	var p parcel
	for _, item := range items {
		q := float64(item.Quantity)
		if q <= 0 {
			q = 1
		}
		p.LengthCm += orDefault(item.Dimensions.LengthCm, defaultLengthCm) * q
		p.WidthCm += orDefault(item.Dimensions.WidthCm, defaultWidthCm) * q
		p.HeightCm += orDefault(item.Dimensions.HeightCm, defaultHeightCm) * q
		p.WeightG += orDefault(item.Dimensions.WeightG, defaultWeightG) * q
	}
	return p
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
