package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

func (d Database) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentEvents string `mapstructure:"payment-events"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

type Outbox struct {
	Enabled            bool `mapstructure:"enabled"`
	PollingIntervalMs  int  `mapstructure:"polling-interval-ms"`
	FetchSize          int  `mapstructure:"fetch-size"`
	RescheduleDelayMs  int  `mapstructure:"reschedule-delay-ms"`
	MaxPublishAttempts int  `mapstructure:"max-publish-attempts"`
}

type Reconcile struct {
	Enabled      bool `mapstructure:"enabled"`
	IntervalMs   int  `mapstructure:"interval-ms"`
	StaleAfterMs int  `mapstructure:"stale-after-ms"`
	BatchSize    int  `mapstructure:"batch-size"`
}

// Provider holds credentials for one gateway. Unused fields stay empty.
type Provider struct {
	APIKey        string `mapstructure:"api-key"`
	SecretKey     string `mapstructure:"secret-key"`
	WebhookSecret string `mapstructure:"webhook-secret"`
	BaseURL       string `mapstructure:"base-url"`
	Environment   string `mapstructure:"environment"`
}

type Payments struct {
	ActiveProvider   string              `mapstructure:"active-provider"`
	GatewayTimeoutMs int                 `mapstructure:"gateway-timeout-ms"`
	Providers        map[string]Provider `mapstructure:"providers"`
}

func (p Payments) GatewayTimeout() time.Duration {
	return time.Duration(p.GatewayTimeoutMs) * time.Millisecond
}

type Auth struct {
	JWTSecret       string   `mapstructure:"jwt-secret"`
	PrivilegedRoles []string `mapstructure:"privileged-roles"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level"`
}

type Tracing struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service-name"`
}

type Config struct {
	Database  Database  `mapstructure:"database"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Outbox    Outbox    `mapstructure:"outbox"`
	Reconcile Reconcile `mapstructure:"reconcile"`
	Payments  Payments  `mapstructure:"payments"`
	Auth      Auth      `mapstructure:"auth"`
	Server    Server    `mapstructure:"server"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Logs      Logs      `mapstructure:"logs"`
	Tracing   Tracing   `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.ssl-mode", "disable")
	v.SetDefault("kafka.topic.payment-events", "payment-events")
	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)
	v.SetDefault("outbox.polling-interval-ms", 500)
	v.SetDefault("outbox.fetch-size", 200)
	v.SetDefault("outbox.reschedule-delay-ms", 10_000)
	v.SetDefault("outbox.max-publish-attempts", 3)
	v.SetDefault("reconcile.interval-ms", 60_000)
	v.SetDefault("reconcile.stale-after-ms", 900_000)
	v.SetDefault("reconcile.batch-size", 50)
	v.SetDefault("payments.active-provider", "sandbox")
	v.SetDefault("payments.gateway-timeout-ms", 15_000)
	v.SetDefault("auth.privileged-roles", []string{"admin"})
	v.SetDefault("logs.level", "info")
	v.SetDefault("tracing.service-name", "payment-service")
}

// LoadConfig reads config.yaml from path. Values can be overridden by
// environment variables, e.g. PAYMENTS_ACTIVE_PROVIDER or DATABASE_PASSWORD.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
