// Package dia reads the collateral asset quotation from the DIA oracle.
package dia

import (
	"context"
	"fmt"
	"math"
	"time"

	"loanwatch/config"
	"loanwatch/models"
	"loanwatch/reader"
)

type quotation struct {
	Symbol string   `json:"Symbol"`
	Price  *float64 `json:"Price"`
	Time   string   `json:"Time"`
}

type Reader struct {
	client *reader.Client
	url    string
	now    func() time.Time
}

func NewReader(cfg *config.Config) *Reader {
	return &Reader{
		client: reader.NewClient("dia_reader", cfg.Reader),
		url:    cfg.Source.Price.URL,
		now:    time.Now,
	}
}

// Price fetches the current USD quotation. The quote is stamped with the
// local receive time.
func (r *Reader) Price(ctx context.Context) (models.PriceQuote, error) {
	var q quotation
	if err := r.client.GetJSON(ctx, r.url, &q); err != nil {
		return models.PriceQuote{}, fmt.Errorf("fetch price: %w", err)
	}
	if q.Price == nil {
		return models.PriceQuote{}, fmt.Errorf("fetch price: %w: missing Price", reader.ErrMalformedPayload)
	}
	p := *q.Price
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return models.PriceQuote{}, fmt.Errorf("fetch price: %w: non-positive price %v", reader.ErrMalformedPayload, p)
	}
	return models.PriceQuote{PriceUSD: p, AsOf: r.now()}, nil
}
