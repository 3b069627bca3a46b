// Package node calls read-only contract methods through the full node's
// call-contract endpoint.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loanwatch/config"
	"loanwatch/reader"

	"github.com/shopspring/decimal"
)

const callSucceeded = "CallContractSucceeded"

type callArg struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

type callRequest struct {
	Args        []callArg `json:"args"`
	Group       int       `json:"group"`
	Address     string    `json:"address"`
	MethodIndex int       `json:"methodIndex"`
}

type callValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type callResponse struct {
	Type    string      `json:"type"`
	Returns []callValue `json:"returns"`
	Error   string      `json:"error"`
}

// text returns the value as a plain string whether the node encoded it as a
// JSON string or a bare number.
func (v callValue) text() (string, error) {
	raw := strings.TrimSpace(string(v.Value))
	if raw == "" || raw == "null" {
		return "", fmt.Errorf("%w: empty return value", reader.ErrMalformedPayload)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return "", fmt.Errorf("%w: %v", reader.ErrMalformedPayload, err)
		}
		return s, nil
	}
	return raw, nil
}

type Reader struct {
	client *reader.Client
	url    string
	cfg    config.NodeSourceConfig
}

func NewReader(cfg *config.Config) *Reader {
	return &Reader{
		client: reader.NewClient("node_reader", cfg.Reader),
		url:    strings.TrimRight(cfg.Source.Node.URL, "/") + "/contracts/call-contract",
		cfg:    cfg.Source.Node,
	}
}

func (r *Reader) call(ctx context.Context, contract string, method int, args []callArg) (callValue, error) {
	if args == nil {
		args = []callArg{}
	}
	body := callRequest{Args: args, Group: r.cfg.Group, Address: contract, MethodIndex: method}

	var resp callResponse
	if err := r.client.PostJSON(ctx, r.url, body, &resp); err != nil {
		// A 404 from the node means a bad endpoint or contract, never a missing loan.
		if errors.Is(err, reader.ErrNotFound) {
			return callValue{}, fmt.Errorf("call %s#%d: %w 404", contract, method, reader.ErrUnexpectedStatus)
		}
		return callValue{}, err
	}
	if resp.Type != callSucceeded {
		detail := resp.Type
		if resp.Error != "" {
			detail += ": " + resp.Error
		}
		return callValue{}, fmt.Errorf("%w: call %s#%d returned %q", reader.ErrMalformedPayload, contract, method, detail)
	}
	if len(resp.Returns) == 0 {
		return callValue{}, fmt.Errorf("%w: call %s#%d returned no values", reader.ErrMalformedPayload, contract, method)
	}
	return resp.Returns[0], nil
}

// FindPositionID asks the manager contract for the contract id (hex) of the
// position owned by address.
func (r *Reader) FindPositionID(ctx context.Context, address string) (string, error) {
	v, err := r.call(ctx, r.cfg.ManagerContract, r.cfg.Methods.PositionLookup, []callArg{{Value: address, Type: "Address"}})
	if err != nil {
		return "", fmt.Errorf("find position for %s: %w", address, err)
	}
	id, err := v.text()
	if err != nil {
		return "", fmt.Errorf("find position for %s: %w", address, err)
	}
	return id, nil
}

// BorrowedAmount returns the debt recorded on the position contract, scaled
// down by the configured number of decimals.
func (r *Reader) BorrowedAmount(ctx context.Context, positionAddress string) (float64, error) {
	d, err := r.decimalCall(ctx, positionAddress, r.cfg.Methods.Borrowed)
	if err != nil {
		return 0, fmt.Errorf("fetch borrowed for %s: %w", positionAddress, err)
	}
	return d.Shift(-r.cfg.BorrowedDecimals).InexactFloat64(), nil
}

// InterestRate returns the position's annual rate in whole percent.
func (r *Reader) InterestRate(ctx context.Context, positionAddress string) (float64, error) {
	d, err := r.decimalCall(ctx, positionAddress, r.cfg.Methods.InterestRate)
	if err != nil {
		return 0, fmt.Errorf("fetch interest rate for %s: %w", positionAddress, err)
	}
	return d.InexactFloat64(), nil
}

func (r *Reader) decimalCall(ctx context.Context, contract string, method int) (decimal.Decimal, error) {
	v, err := r.call(ctx, contract, method, nil)
	if err != nil {
		return decimal.Zero, err
	}
	s, err := v.text()
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", reader.ErrMalformedPayload, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative value %s", reader.ErrMalformedPayload, s)
	}
	return d, nil
}
