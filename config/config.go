package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Loanwatch LoanwatchConfig `yaml:"loanwatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reader    ReaderConfig    `yaml:"reader"`
	Source    SourceConfig    `yaml:"source"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Risk      RiskConfig      `yaml:"risk"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Favorites FavoritesConfig `yaml:"favorites"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

type LoanwatchConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ReaderConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type SourceConfig struct {
	Price PriceSourceConfig `yaml:"price"`
	Loan  LoanSourceConfig  `yaml:"loan"`
	Node  NodeSourceConfig  `yaml:"node"`
}

// PriceSourceConfig points at the collateral price oracle.
type PriceSourceConfig struct {
	URL string `yaml:"url"`
}

// LoanSourceConfig points at the loan API; the address is appended to URL.
type LoanSourceConfig struct {
	URL string `yaml:"url"`
}

type NodeSourceConfig struct {
	URL              string      `yaml:"url"`
	Group            int         `yaml:"group"`
	ManagerContract  string      `yaml:"manager_contract"`
	Methods          NodeMethods `yaml:"methods"`
	BorrowedDecimals int32       `yaml:"borrowed_decimals"`
}

type NodeMethods struct {
	PositionLookup int `yaml:"position_lookup"`
	Borrowed       int `yaml:"borrowed"`
	InterestRate   int `yaml:"interest_rate"`
}

type RefreshConfig struct {
	PriceInterval    time.Duration `yaml:"price_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PositionInterval time.Duration `yaml:"position_interval"`
	Address          string        `yaml:"address"`
}

type RiskConfig struct {
	MinCollateralRatio  float64 `yaml:"min_collateral_ratio"`
	DefaultInterestRate float64 `yaml:"default_interest_rate"`
}

type MetricsConfig struct {
	Position   bool             `yaml:"position"`
	Refresh    bool             `yaml:"refresh"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type FavoritesConfig struct {
	Path string `yaml:"path"`
}

type AlertsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Buffer  int      `yaml:"buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used for any key a file leaves out.
func Default() Config {
	return Config{
		Loanwatch: LoanwatchConfig{Name: "loanwatch", Version: "dev"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Reader: ReaderConfig{
			Timeout:   10 * time.Second,
			UserAgent: "loanwatch/1.0",
			RateLimit: RateLimitConfig{RequestsPerSecond: 5, BurstSize: 2},
		},
		Source: SourceConfig{
			Price: PriceSourceConfig{URL: "https://api.diadata.org/v1/assetQuotation/Alephium/tgx7VNFoP9DJiFMFgXXtafQZkUvyEdDHT9ryamHJYrjq"},
			Loan:  LoanSourceConfig{URL: "https://api.alphbanx.com/api/loan"},
			Node: NodeSourceConfig{
				URL:              "https://lb-fullnode-alephium.notrustverify.ch",
				ManagerContract:  "tpxjsWJSaUh5i7XzNAsTWMRtD9QvDTV9zmMNeHHS6jQB",
				Methods:          NodeMethods{PositionLookup: 23, Borrowed: 9, InterestRate: 5},
				BorrowedDecimals: 9,
			},
		},
		Refresh: RefreshConfig{
			PriceInterval:    30 * time.Second,
			PollInterval:     10 * time.Second,
			PositionInterval: 60 * time.Second,
		},
		Risk:      RiskConfig{MinCollateralRatio: 200, DefaultInterestRate: 5},
		Metrics:   MetricsConfig{Position: true, Refresh: true, CloudWatch: CloudWatchConfig{Namespace: "LoanWatch", Dashboard: "LoanWatch"}},
		Dashboard: DashboardConfig{Address: "0.0.0.0:8080", RefreshInterval: 5 * time.Second, LogHistory: 200, MetricsHistory: 200},
		Favorites: FavoritesConfig{Path: "loanwatch-favorites.json"},
		Alerts:    AlertsConfig{Kafka: KafkaConfig{Topic: "loanwatch.alerts", Buffer: 64}},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LOANWATCH_NODE_URL"); v != "" {
		config.Source.Node.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOANWATCH_ADDRESS"); v != "" {
		config.Refresh.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOANWATCH_FAVORITES_PATH"); v != "" {
		config.Favorites.Path = strings.TrimSpace(v)
	}
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers := make([]string, 0)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Alerts.Kafka.Brokers = brokers
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Loanwatch.Name == "" {
		return fmt.Errorf("loanwatch.name is required")
	}

	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}

	for name, raw := range map[string]string{
		"source.price.url": cfg.Source.Price.URL,
		"source.loan.url":  cfg.Source.Loan.URL,
		"source.node.url":  cfg.Source.Node.URL,
	} {
		if !isValidHTTPURL(raw) {
			return fmt.Errorf("%s '%s' is not a valid http(s) url", name, raw)
		}
	}

	if cfg.Source.Node.ManagerContract == "" {
		return fmt.Errorf("source.node.manager_contract is required")
	}
	if cfg.Source.Node.BorrowedDecimals < 0 {
		return fmt.Errorf("source.node.borrowed_decimals must not be negative")
	}

	if cfg.Refresh.PriceInterval <= 0 {
		return fmt.Errorf("refresh.price_interval must be greater than 0")
	}
	if cfg.Refresh.PollInterval <= 0 {
		return fmt.Errorf("refresh.poll_interval must be greater than 0")
	}
	if cfg.Refresh.PositionInterval < cfg.Refresh.PollInterval {
		return fmt.Errorf("refresh.position_interval must not be shorter than refresh.poll_interval")
	}

	if cfg.Risk.MinCollateralRatio <= 100 {
		return fmt.Errorf("risk.min_collateral_ratio must be greater than 100")
	}
	if cfg.Risk.DefaultInterestRate < 0 {
		return fmt.Errorf("risk.default_interest_rate must not be negative")
	}

	if cfg.Dashboard.Enabled && strings.TrimSpace(cfg.Dashboard.Address) == "" && IsProductionLike(AppEnvironment()) {
		return fmt.Errorf("dashboard.address is required in %s", AppEnvironment())
	}

	if cfg.Alerts.Kafka.Enabled {
		if len(cfg.Alerts.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerts.kafka.brokers is required when kafka alerts are enabled")
		}
		if cfg.Alerts.Kafka.Topic == "" {
			return fmt.Errorf("alerts.kafka.topic is required when kafka alerts are enabled")
		}
	}

	return nil
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
