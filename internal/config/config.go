package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type SettlementConfig struct {
	Env           string `yaml:"env" env:"SETTLEMENT_ENV" env-default:"local"`
	HTTPServer    `yaml:"http_server"`
	SettlementDB  `yaml:"settlement_db"`
	Redis         `yaml:"redis"`
	KafkaService  `yaml:"kafka-service"`
	WalletService `yaml:"wallet-service"`
	Telegram      `yaml:"telegram"`
	LogConfig     `yaml:"log_config"`
	Escrow        `yaml:"escrow"`
	Outbox        `yaml:"outbox"`
	Schedulers    `yaml:"schedulers"`
}

type HTTPServer struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type SettlementDB struct {
	Dsn             string        `yaml:"dsn" env:"SETTLEMENT_DB_DSN" env-required:"true"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type Redis struct {
	Addr            string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password        string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB              int           `yaml:"db" env-default:"0"`
	BalanceCacheTTL time.Duration `yaml:"balance_cache_ttl" env-default:"5m"`
}

type KafkaService struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Username   string   `yaml:"username" env:"KAFKA_USERNAME"`
	Password   string   `yaml:"password" env:"KAFKA_PASSWORD"`
	Mechanism  string   `yaml:"mechanism" env:"KAFKA_MECHANISM"`
	TLSEnabled bool     `yaml:"tls_enabled" env:"KAFKA_TLS_ENABLED"`

	TriggersTopic   string        `yaml:"triggers_topic" env-default:"deal-triggers"`
	ConsumerGroup   string        `yaml:"consumer_group" env-default:"settlement-service"`
	ListenerWorkers int           `yaml:"listener_workers" env-default:"4"`
	ConflictRetries int           `yaml:"conflict_retries" env-default:"3"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" env-default:"200ms"`
}

type WalletService struct {
	BaseURL string        `yaml:"base_url" env:"WALLET_SERVICE_URL" env-default:"http://localhost:8081"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`
	LogOutput string `yaml:"log_output" env:"LOG_OUTPUT" env-default:"stdout"`
}

type Escrow struct {
	MinConfirmations int `yaml:"min_confirmations" env-default:"1"`
}

type Outbox struct {
	Interval        time.Duration `yaml:"interval" env-default:"1s"`
	BatchSize       int           `yaml:"batch_size" env-default:"50"`
	MaxRetries      int           `yaml:"max_retries" env-default:"5"`
	VisibilityDelay time.Duration `yaml:"visibility_delay" env-default:"500ms"`
	ClaimTTL        time.Duration `yaml:"claim_ttl" env-default:"2m"`
	PublishTimeout  time.Duration `yaml:"publish_timeout" env-default:"5s"`
}

type Job struct {
	Interval  time.Duration `yaml:"interval"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
	BatchSize int           `yaml:"batch_size"`
}

type DealTimeoutJob struct {
	Job      `yaml:",inline"`
	Grace    time.Duration            `yaml:"grace" env-default:"5m"`
	Timeouts map[string]time.Duration `yaml:"timeouts"`
}

type UnclaimedPayoutJob struct {
	Job            `yaml:",inline"`
	UnclaimedAfter time.Duration `yaml:"unclaimed_after" env-default:"720h"`
	MinNano        int64         `yaml:"min_nano" env-default:"1"`
}

type Schedulers struct {
	DealTimeout     DealTimeoutJob     `yaml:"deal_timeout"`
	CommissionSweep Job                `yaml:"commission_sweep"`
	UnclaimedPayout UnclaimedPayoutJob `yaml:"unclaimed_payout"`
}

func MustLoad() *SettlementConfig {

	configPath := os.Getenv("SETTLEMENT_CONFIG_PATH")

	if configPath == "" {
		log.Fatalf("SETTLEMENT_CONFIG_PATH was not found\n")
	}

	if _, err := os.Stat(configPath); err != nil {
		log.Fatalf("failed to find config file: %v\n", err)
	}

	var cfg SettlementConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}
	cfg.Schedulers.applyDefaults()

	return &cfg
}

// applyDefaults fills job settings left empty in the file. cleanenv does
// not descend into inline structs for defaults.
func (s *Schedulers) applyDefaults() {
	s.DealTimeout.Job = s.DealTimeout.Job.withDefaults(time.Minute, 5*time.Minute, 100)
	s.CommissionSweep = s.CommissionSweep.withDefaults(time.Hour, 30*time.Minute, 200)
	s.UnclaimedPayout.Job = s.UnclaimedPayout.Job.withDefaults(6*time.Hour, 30*time.Minute, 100)
	if len(s.DealTimeout.Timeouts) == 0 {
		s.DealTimeout.Timeouts = DefaultDealTimeouts()
	}
}

func (j Job) withDefaults(interval, lockTTL time.Duration, batch int) Job {
	if j.Interval <= 0 {
		j.Interval = interval
	}
	if j.LockTTL <= 0 {
		j.LockTTL = lockTTL
	}
	if j.BatchSize <= 0 {
		j.BatchSize = batch
	}
	return j
}

// DefaultDealTimeouts is the maximum time a deal may stay in each status.
func DefaultDealTimeouts() map[string]time.Duration {
	return map[string]time.Duration{
		"OFFER_PENDING":     48 * time.Hour,
		"NEGOTIATING":       72 * time.Hour,
		"AWAITING_PAYMENT":  24 * time.Hour,
		"FUNDED":            72 * time.Hour,
		"CREATIVE_APPROVED": 72 * time.Hour,
		"SCHEDULED":         7 * 24 * time.Hour,
	}
}
