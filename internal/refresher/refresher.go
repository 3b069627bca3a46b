// Package refresher fetches a wallet's loan position from the external
// sources and keeps a Session evaluated against the latest inputs.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loanwatch/config"
	"loanwatch/internal/codec"
	"loanwatch/internal/engine"
	"loanwatch/logger"
	"loanwatch/models"
	"loanwatch/reader"

	"github.com/google/uuid"
)

// ErrAddressRequired is carried by OutcomeInputMissing results.
var ErrAddressRequired = errors.New("address is required")

// CollateralSource returns the collateral locked by a wallet. It returns an
// error wrapping reader.ErrNotFound when the wallet has no loan.
type CollateralSource interface {
	Collateral(ctx context.Context, address string) (float64, error)
}

// PositionLocator resolves a wallet to the contract id of its position.
type PositionLocator interface {
	FindPositionID(ctx context.Context, address string) (string, error)
}

// PositionReader reads balances from a position contract.
type PositionReader interface {
	BorrowedAmount(ctx context.Context, positionAddress string) (float64, error)
	InterestRate(ctx context.Context, positionAddress string) (float64, error)
}

type PriceSource interface {
	Price(ctx context.Context) (models.PriceQuote, error)
}

type Calculator interface {
	Evaluate(s models.PositionSnapshot) models.Evaluation
}

// Sources groups the external collaborators of a Refresher.
type Sources struct {
	Collateral CollateralSource
	Locator    PositionLocator
	Positions  PositionReader
	Prices     PriceSource
}

type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeInputMissing Outcome = "input_missing"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeFailed       Outcome = "failed"
	// OutcomeSuperseded means the fetch finished after the session had
	// switched to another address; its values were discarded.
	OutcomeSuperseded Outcome = "superseded"
)

var outcomeMessages = map[Outcome]string{
	OutcomeInputMissing: "Please enter an address.",
	OutcomeNotFound:     "Address does not have a loan on AlphBanx.",
	OutcomeFailed:       "Could not fetch data. Please check the address or try again later.",
	OutcomeSuperseded:   "Another address was selected while this one was loading.",
}

// Message is the user-facing text for o; empty for OutcomeSuccess.
func (o Outcome) Message() string { return outcomeMessages[o] }

type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
	TriggerPrice  Trigger = "price"
	TriggerBorrow Trigger = "borrow"
)

// Result describes one refresher operation. Evaluation is set only when
// Outcome is OutcomeSuccess. OnChain evaluates the fetched position without
// the user's additional borrow; it is nil for TriggerBorrow results, which
// only explore a what-if.
type Result struct {
	ID         string             `json:"id"`
	Address    string             `json:"address,omitempty"`
	Trigger    Trigger            `json:"trigger"`
	Outcome    Outcome            `json:"outcome"`
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
	OnChain    *models.Evaluation `json:"-"`
	Err        error              `json:"-"`
	Duration   time.Duration      `json:"duration"`
}

func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Observer receives every Result produced by a Refresher.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

type ObserverFunc func(ctx context.Context, r Result)

func (f ObserverFunc) Observe(ctx context.Context, r Result) { f(ctx, r) }

type Refresher struct {
	sources          Sources
	calc             Calculator
	session          *Session
	positionInterval time.Duration

	mu        sync.RWMutex
	observers []Observer

	log   *logger.Log
	now   func() time.Time
	newID func() string
}

// New wires a Refresher around a fresh Session seeded with the configured
// default interest rate.
func New(cfg *config.Config, sources Sources, calc Calculator) *Refresher {
	return &Refresher{
		sources:          sources,
		calc:             calc,
		session:          NewSession(cfg.Risk.DefaultInterestRate),
		positionInterval: cfg.Refresh.PositionInterval,
		log:              logger.GetLogger(),
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

func (r *Refresher) Session() *Session { return r.session }

// Subscribe registers o for every subsequent Result.
func (r *Refresher) Subscribe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Refresher) notify(ctx context.Context, res Result) {
	r.mu.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()
	for _, o := range observers {
		o.Observe(ctx, res)
	}
}

// Refresh makes address the current one and fetches its position. Only a
// successful fetch touches the session values; every other outcome leaves
// the previous inputs and evaluation in place.
func (r *Refresher) Refresh(ctx context.Context, address string) Result {
	return r.refresh(ctx, strings.TrimSpace(address), TriggerManual)
}

// AutoRefresh refreshes the current address when position_interval has
// elapsed since its last fetch. It reports false when nothing was due.
func (r *Refresher) AutoRefresh(ctx context.Context) (Result, bool) {
	address := r.session.Address()
	if address == "" {
		return Result{}, false
	}
	if last := r.session.LastFetch(); !last.IsZero() && r.now().Sub(last) < r.positionInterval {
		return Result{}, false
	}
	return r.refresh(ctx, address, TriggerAuto), true
}

func (r *Refresher) refresh(ctx context.Context, address string, trigger Trigger) Result {
	start := r.now()
	res := Result{ID: r.newID(), Address: address, Trigger: trigger}
	log := r.log.WithComponent("refresher").WithFields(logger.Fields{
		"refresh_id": res.ID,
		"address":    address,
		"trigger":    string(trigger),
	})

	defer func() {
		res.Duration = r.now().Sub(start)
		logger.IncrementRefresh()
		r.notify(ctx, res)
	}()

	if address == "" {
		r.session.clearAddress()
		res.Outcome = OutcomeInputMissing
		res.Err = ErrAddressRequired
		log.Info("refresh skipped: no address")
		return res
	}
	r.session.setAddress(address)

	fetched, noLoan, err := r.fetchPosition(ctx, address)
	switch {
	case noLoan:
		r.session.markFetched(address, r.now())
		res.Outcome = OutcomeNotFound
		res.Err = err
		log.Info("address has no loan")
		return res
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Err = err
		log.WithError(err).Warn("refresh failed")
		return res
	}

	snap, ok := r.session.applyPosition(address, fetched)
	if !ok {
		res.Outcome = OutcomeSuperseded
		log.Info("discarding refresh for address no longer watched")
		return res
	}

	ev := r.evaluate(snap)
	res.Outcome = OutcomeSuccess
	res.Evaluation = &ev
	res.OnChain = r.onChain(snap, &ev)
	logger.LogPerformanceEntry(log, "refresher", "refresh", r.now().Sub(start), logger.Fields{
		"position_address": fetched.PositionAddress,
		"risk_tier":        ev.Metrics.DisplayTier().String(),
	})
	return res
}

// fetchPosition runs the lookup sequence: loan API, position id, derived
// position address, then borrowed amount and rate from the position contract.
// noLoan is reported only for a not-found answer from the loan API; a 404
// from any later step is an ordinary failure.
func (r *Refresher) fetchPosition(ctx context.Context, address string) (snap models.PositionSnapshot, noLoan bool, err error) {
	collateral, err := r.sources.Collateral.Collateral(ctx, address)
	if err != nil {
		return models.PositionSnapshot{}, errors.Is(err, reader.ErrNotFound), err
	}

	id, err := r.sources.Locator.FindPositionID(ctx, address)
	if err != nil {
		return models.PositionSnapshot{}, false, err
	}
	positionAddress, err := codec.DeriveAddress(id)
	if err != nil {
		return models.PositionSnapshot{}, false, fmt.Errorf("derive position address: %w", err)
	}

	borrowed, err := r.sources.Positions.BorrowedAmount(ctx, positionAddress)
	if err != nil {
		return models.PositionSnapshot{}, false, err
	}
	rate, err := r.sources.Positions.InterestRate(ctx, positionAddress)
	if err != nil {
		return models.PositionSnapshot{}, false, err
	}

	snap = models.PositionSnapshot{
		Address:                address,
		PositionAddress:        positionAddress,
		CollateralAmount:       collateral,
		ExistingBorrowed:       borrowed,
		InterestRateAPRPercent: rate,
		FetchedAt:              r.now(),
	}
	if err := snap.Validate(); err != nil {
		return models.PositionSnapshot{}, false, fmt.Errorf("%w: %v", reader.ErrMalformedPayload, err)
	}
	return snap, false, nil
}

// RefreshPrice fetches a new price and re-evaluates the current inputs with it.
func (r *Refresher) RefreshPrice(ctx context.Context) Result {
	start := r.now()
	res := Result{ID: r.newID(), Address: r.session.Address(), Trigger: TriggerPrice}
	defer func() {
		res.Duration = r.now().Sub(start)
		r.notify(ctx, res)
	}()

	q, err := r.sources.Prices.Price(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		r.log.WithComponent("refresher").WithError(err).Warn("price refresh failed")
		return res
	}

	snap := r.session.setPrice(q)
	ev := r.evaluate(snap)
	res.Outcome = OutcomeSuccess
	res.Evaluation = &ev
	res.OnChain = r.onChain(snap, &ev)
	return res
}

// SetAdditionalBorrow applies a new additional borrow, clamped to
// [0, floor(max additional borrow)], and re-evaluates.
func (r *Refresher) SetAdditionalBorrow(ctx context.Context, amount float64) Result {
	current := r.calc.Evaluate(r.session.Snapshot())
	clamped := engine.ClampAdditionalBorrow(amount, current.Metrics.MaxAdditionalBorrow)

	ev := r.evaluate(r.session.setAdditionalBorrow(clamped))
	res := Result{
		ID:         r.newID(),
		Address:    r.session.Address(),
		Trigger:    TriggerBorrow,
		Outcome:    OutcomeSuccess,
		Evaluation: &ev,
	}
	r.notify(ctx, res)
	return res
}

// Current returns the session's stored evaluation, or computes one from the
// current inputs when none exists yet. It never writes to the session.
func (r *Refresher) Current() models.Evaluation {
	if ev, ok := r.session.Evaluation(); ok {
		return ev
	}
	return r.compute(r.session.Snapshot())
}

// onChain drops the additional borrow from snap; ev is reused when there
// is none.
func (r *Refresher) onChain(snap models.PositionSnapshot, ev *models.Evaluation) *models.Evaluation {
	if snap.AdditionalBorrow == 0 {
		return ev
	}
	snap.AdditionalBorrow = 0
	base := r.compute(snap)
	return &base
}

func (r *Refresher) compute(snap models.PositionSnapshot) models.Evaluation {
	ev := r.calc.Evaluate(snap)
	ev.Price = r.session.Price()
	return ev
}

func (r *Refresher) evaluate(snap models.PositionSnapshot) models.Evaluation {
	ev := r.compute(snap)
	r.session.setEvaluation(ev)
	return ev
}
