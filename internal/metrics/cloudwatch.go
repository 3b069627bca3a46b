package metrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"loanwatch/config"
	"loanwatch/logger"
)

//go:embed CWdash.json
var dashboardTemplate string

type cloudWatchState struct {
	client        *cloudwatch.Client
	namespace     string
	dashboardName string
	region        string
}

var cwState atomic.Pointer[cloudWatchState]

const (
	cloudWatchQueueSize = 256
	// datapoints per PutMetricData call
	cloudWatchBatchSize = 20
)

var (
	// cloudWatchPublishInterval is the minimum spacing between two datapoints
	// of the same metric series.
	cloudWatchPublishInterval = time.Minute
	timeNow                   = time.Now
	publishMetricsFunc        = publishMetrics

	lastPublishMu sync.Mutex
	lastPublish   = make(map[string]time.Time)

	// datumQueue feeds the publisher goroutine started by InitCloudWatch.
	datumQueue    = make(chan cwtypes.MetricDatum, cloudWatchQueueSize)
	publisherOnce sync.Once
)

func init() {
	cwState.Store(&cloudWatchState{
		namespace:     "LoanWatch",
		dashboardName: "LoanWatch",
	})
}

func resetMetricPublishTimes() {
	lastPublishMu.Lock()
	lastPublish = make(map[string]time.Time)
	lastPublishMu.Unlock()
}

// InitCloudWatch creates the CloudWatch client and applies the embedded
// dashboard. When the AWS configuration cannot be loaded it logs a warning
// and leaves publishing disabled.
func InitCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := cloudWatchState{}
	if current := cwState.Load(); current != nil {
		state = *current
	}
	state.client = cloudwatch.NewFromConfig(awsCfg)
	if cfg.Namespace != "" {
		state.namespace = cfg.Namespace
	}
	if cfg.Dashboard != "" {
		state.dashboardName = cfg.Dashboard
	}
	state.region = region
	if awsCfg.Region != "" {
		state.region = awsCfg.Region
	}
	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")

	publisherOnce.Do(func() {
		go runPublisher(ctx, datumQueue)
	})

	if err := CreateDashboardFromTemplate(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// EmitMetric logs the metric, dispatches it to the registered handlers and
// publishes numeric values to CloudWatch when a client is configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(metricEvent.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metricEvent.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	publishMetricDatum(metricEvent, numericValue)
}

// CreateDashboardFromTemplate renders the embedded dashboard for the
// configured namespace and region and uploads it.
func CreateDashboardFromTemplate(ctx context.Context) error {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return nil
	}

	body, err := renderDashboard(state)
	if err != nil {
		return err
	}

	_, err = state.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(state.dashboardName),
		DashboardBody: aws.String(body),
	})
	if err != nil {
		return err
	}

	logger.GetLogger().WithComponent("cloudwatch").Debug("updated CloudWatch dashboard from template")
	return nil
}

func renderDashboard(state *cloudWatchState) (string, error) {
	body := dashboardTemplate
	if state.namespace != "" {
		body = strings.ReplaceAll(body, "\"LoanWatch\"", fmt.Sprintf("%q", state.namespace))
	}
	if state.region != "" {
		body = strings.ReplaceAll(body, "\"eu-central-1\"", fmt.Sprintf("%q", state.region))
	}
	if !json.Valid([]byte(body)) {
		return "", fmt.Errorf("dashboard template is not valid JSON after substitution")
	}
	return body, nil
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	if !allowPublish(seriesKey(metric.Name, dims)) {
		return
	}

	unit := cwtypes.StandardUnitNone
	if rawUnit, ok := metric.Fields["unit"].(string); ok {
		if parsed, found := metricUnitFromString(rawUnit); found {
			unit = parsed
		} else {
			logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name, "unit": rawUnit}).Debug("unsupported metric unit; defaulting to None")
		}
	}

	ts := metric.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
		Timestamp:  aws.Time(ts),
	}
	select {
	case datumQueue <- datum:
	default:
		// Not routed through EmitMetric, which would enqueue again.
		Init()
		droppedTotal.WithLabelValues(string(DropMetricCloudWatch)).Inc()
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name}).Debug("publish queue full; dropping datapoint")
	}
}

// runPublisher drains queue into PutMetricData batches until ctx ends.
func runPublisher(ctx context.Context, queue <-chan cwtypes.MetricDatum) {
	for {
		select {
		case <-ctx.Done():
			return
		case datum := <-queue:
			batch := []cwtypes.MetricDatum{datum}
		fill:
			for len(batch) < cloudWatchBatchSize {
				select {
				case next := <-queue:
					batch = append(batch, next)
				default:
					break fill
				}
			}
			publishMetricsFunc(ctx, cwState.Load(), batch)
		}
	}
}

func seriesKey(name string, dims []cwtypes.Dimension) string {
	var b strings.Builder
	b.WriteString(name)
	for _, d := range dims {
		b.WriteString("|")
		b.WriteString(aws.ToString(d.Name))
		b.WriteString("=")
		b.WriteString(aws.ToString(d.Value))
	}
	return b.String()
}

// allowPublish reports whether key may publish now and records the attempt.
func allowPublish(key string) bool {
	now := timeNow()
	lastPublishMu.Lock()
	defer lastPublishMu.Unlock()
	if last, ok := lastPublish[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	lastPublish[key] = now
	return true
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil || len(data) == 0 {
		return
	}

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		names = append(names, aws.ToString(datum.MetricName))
	}
	logger.GetLogger().WithComponent("cloudwatch").WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds, true
	case "none", "usd":
		return cwtypes.StandardUnitNone, true
	default:
		return cwtypes.StandardUnitNone, false
	}
}
