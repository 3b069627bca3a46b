package metrics

import "loanwatch/logger"

// DropMetric identifies the metric name emitted when a buffered message is dropped.
type DropMetric string

const (
	// DropMetricAlert records tier alerts dropped because the Kafka queue was full.
	DropMetricAlert DropMetric = "alert_messages_dropped"
	// DropMetricWebsocket records evaluations not delivered to a slow websocket client.
	DropMetricWebsocket DropMetric = "websocket_messages_dropped"
	// DropMetricCloudWatch counts datapoints lost to a full CloudWatch queue.
	// It is exported through Prometheus only.
	DropMetricCloudWatch DropMetric = "cloudwatch_datapoints_dropped"
)

// EmitDropMetric emits a counter increment for one dropped message. Address
// and stage are attached when set so drops can be aggregated per position.
func EmitDropMetric(log *logger.Log, metric DropMetric, address, stage string) {
	fields := logger.Fields{}
	if address != "" {
		fields["address"] = address
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "buffer_drops", string(metric), 1, "counter", fields)
}
