package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	appconfig "loanwatch/config"
	"loanwatch/internal/metrics"
	"loanwatch/internal/refresher"
	"loanwatch/logger"
	"loanwatch/models"
)

// TierAlert is published whenever the display tier of a watched address
// changes.
type TierAlert struct {
	ID                            string          `json:"id"`
	Address                       string          `json:"address"`
	PositionAddress               string          `json:"position_address,omitempty"`
	PreviousTier                  models.RiskTier `json:"previous_tier"`
	CurrentTier                   models.RiskTier `json:"current_tier"`
	CollateralizationRatioPercent *float64        `json:"collateralization_ratio_percent"`
	LiquidationPriceUSD           *float64        `json:"liquidation_price_usd"`
	Message                       string          `json:"message,omitempty"`
	Trigger                       string          `json:"trigger"`
	Timestamp                     time.Time       `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertWriter observes refresher results and forwards tier changes to Kafka
// from a single background worker.
type AlertWriter struct {
	writer messageWriter
	alerts chan TierAlert

	tiersMu sync.Mutex
	tiers   map[string]models.RiskTier

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	now     func() time.Time
}

func NewAlertWriter(cfg *appconfig.Config) (*AlertWriter, error) {
	kc := cfg.Alerts.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(kc.Brokers...),
		Topic:    kc.Topic,
		Balancer: &kafka.Hash{},
	}
	aw := newAlertWriter(w, kc.Buffer)
	aw.log.WithComponent("alert_writer").WithFields(logger.Fields{
		"brokers": kc.Brokers,
		"topic":   kc.Topic,
	}).Debug("kafka alert writer initialized")
	return aw, nil
}

func newAlertWriter(w messageWriter, buffer int) *AlertWriter {
	if buffer <= 0 {
		buffer = 64
	}
	return &AlertWriter{
		writer: w,
		alerts: make(chan TierAlert, buffer),
		tiers:  make(map[string]models.RiskTier),
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
		now:    time.Now,
	}
}

func (aw *AlertWriter) Start(ctx context.Context) error {
	aw.mu.Lock()
	if aw.running {
		aw.mu.Unlock()
		return fmt.Errorf("alert writer already running")
	}
	aw.running = true
	aw.ctx, aw.cancel = context.WithCancel(ctx)
	aw.mu.Unlock()

	aw.log.WithComponent("alert_writer").Debug("starting alert writer")

	aw.wg.Add(1)
	go aw.run()
	return nil
}

// Observe implements refresher.Observer. Only successful on-chain
// evaluations for a known address can change a tier; additional-borrow
// what-ifs never do.
func (aw *AlertWriter) Observe(_ context.Context, res refresher.Result) {
	if !res.OK() || res.OnChain == nil || res.Address == "" {
		return
	}
	alert, changed := aw.transition(res, *res.OnChain)
	if !changed {
		return
	}
	select {
	case aw.alerts <- alert:
	default:
		aw.log.WithComponent("alert_writer").WithFields(logger.Fields{
			"address": alert.Address,
			"tier":    alert.CurrentTier.String(),
		}).Warn("alert buffer full, dropping tier change")
		metrics.ReportDrop(aw.log, metrics.DropMetricAlert, alert.Address)
	}
}

func (aw *AlertWriter) transition(res refresher.Result, ev models.Evaluation) (TierAlert, bool) {
	m := ev.Metrics
	current := m.DisplayTier()

	aw.tiersMu.Lock()
	previous := aw.tiers[res.Address]
	aw.tiers[res.Address] = current
	aw.tiersMu.Unlock()

	if previous == current {
		return TierAlert{}, false
	}
	return TierAlert{
		ID:                            uuid.NewString(),
		Address:                       res.Address,
		PositionAddress:               ev.Snapshot.PositionAddress,
		PreviousTier:                  previous,
		CurrentTier:                   current,
		CollateralizationRatioPercent: m.CollateralizationRatioPercent,
		LiquidationPriceUSD:           m.LiquidationPriceUSD,
		Message:                       m.Message,
		Trigger:                       string(res.Trigger),
		Timestamp:                     aw.now(),
	}, true
}

func (aw *AlertWriter) run() {
	defer aw.wg.Done()

	for {
		select {
		case <-aw.ctx.Done():
			return
		case alert := <-aw.alerts:
			aw.write(alert)
		}
	}
}

func (aw *AlertWriter) write(alert TierAlert) {
	log := aw.log.WithComponent("alert_writer").WithFields(logger.Fields{
		"alert_id": alert.ID,
		"address":  alert.Address,
		"from":     alert.PreviousTier.String(),
		"to":       alert.CurrentTier.String(),
	})
	data, err := json.Marshal(alert)
	if err != nil {
		log.WithError(err).Warn("failed to marshal alert")
		return
	}
	msg := kafka.Message{
		Key:   []byte(alert.Address),
		Value: data,
		Time:  alert.Timestamp,
	}
	if err := aw.writer.WriteMessages(aw.ctx, msg); err != nil {
		log.WithError(err).Warn("failed to write alert")
		return
	}
	log.Info("tier alert written to kafka")
}

func (aw *AlertWriter) Stop() {
	aw.mu.Lock()
	if !aw.running {
		aw.mu.Unlock()
		return
	}
	aw.running = false
	aw.cancel()
	aw.mu.Unlock()

	aw.log.WithComponent("alert_writer").Debug("stopping alert writer")
	aw.wg.Wait()
	if err := aw.writer.Close(); err != nil {
		aw.log.WithComponent("alert_writer").WithError(err).Warn("failed to close kafka writer")
	}
	aw.log.WithComponent("alert_writer").Debug("alert writer stopped")
}
