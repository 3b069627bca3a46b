// Package alphbanx reads loan collateral from the AlphBanx API.
package alphbanx

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"

	"loanwatch/config"
	"loanwatch/reader"
)

type loanResponse struct {
	CurrentCollateral *float64 `json:"currentCollateral"`
}

type Reader struct {
	client *reader.Client
	base   string
}

func NewReader(cfg *config.Config) *Reader {
	return &Reader{
		client: reader.NewClient("alphbanx_reader", cfg.Reader),
		base:   strings.TrimRight(cfg.Source.Loan.URL, "/"),
	}
}

// Collateral returns the collateral locked by address. A 404 from the API
// surfaces as reader.ErrNotFound, meaning the address has no loan.
func (r *Reader) Collateral(ctx context.Context, address string) (float64, error) {
	var resp loanResponse
	endpoint := r.base + "/" + url.PathEscape(address)
	if err := r.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("fetch loan %s: %w", address, err)
	}
	if resp.CurrentCollateral == nil {
		return 0, fmt.Errorf("fetch loan %s: %w: missing currentCollateral", address, reader.ErrMalformedPayload)
	}
	v := *resp.CurrentCollateral
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("fetch loan %s: %w: invalid collateral %v", address, reader.ErrMalformedPayload, v)
	}
	return v, nil
}
