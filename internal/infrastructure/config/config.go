package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Kafka     KafkaConfig
	Consumer  ConsumerConfig
	Loyalty   LoyaltyConfig
	HTTP      HTTPConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name          string
	Env           string
	Port          string
	ShutdownGrace time.Duration // bounded wait for in-flight work on shutdown
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings.
// URL, when set, takes precedence over the discrete fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded migrations when a binary starts
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings for the account cache
type RedisConfig struct {
	Enabled          bool
	Host             string
	Port             int
	Password         string
	DB               int
	FallbackToMemory bool // use an in-process cache when Redis is unreachable at startup
}

// KafkaConfig holds broker connection settings
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	Username    string // SASL/PLAIN over TLS is used when set
	Password    string
	DialTimeout time.Duration
}

// ConsumerConfig holds event consumption settings
type ConsumerConfig struct {
	CommitInterval      time.Duration // offsets are flushed to the broker at this interval
	MaxDeliveryAttempts int
	RetryBackoff        time.Duration
	MaxRetryBackoff     time.Duration
	DeadLetterEnabled   bool
	DeadLetterTopic     string
}

// LoyaltyConfig holds business settings
type LoyaltyConfig struct {
	EarnRate         float64
	CacheTTL         time.Duration
	MaxWriteAttempts int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequestTimeout   time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled    bool
	AllowedIPs []string // IP whitelist (empty = allow all)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool
	CollectorEndpoint     string  // host:port of the OTLP gRPC collector
	SamplingRatio         float64 // 0.0-1.0
	ServiceName           string
	Insecure              bool
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	ShutdownTimeout       time.Duration
	DBTraceEnabled        bool
	DBLogFullSQL          bool // dev only
	DBSlowQueryThresh     time.Duration
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// legacyEnv maps config keys to the variable names used by earlier deployments
// of the service. They are consulted after the LOYALTY_ prefixed name.
var legacyEnv = map[string]string{
	"database.url":                 "DATABASE_URL",
	"kafka.brokers":                "BROKER",
	"kafka.group_id":               "GROUP_ID",
	"kafka.username":               "KAFKA_USERNAME",
	"kafka.password":               "KAFKA_PASSWORD",
	"telemetry.collector_endpoint": "OTLP_ENDPOINT",
	"telemetry.service_name":       "DD_SERVICE",
}

// Load loads configuration from a .env file, a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with LOYALTY_ prefix (e.g., LOYALTY_DATABASE_PASSWORD)
// 2. Legacy variables (DATABASE_URL, BROKER, GROUP_ID, ...)
// 3. config.toml
// 4. Built-in defaults
//
// Variables in .env never override variables already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "LOYALTY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:          v.GetString("app.name"),
			Env:           v.GetString("app.env"),
			Port:          v.GetString("app.port"),
			ShutdownGrace: v.GetDuration("app.shutdown_grace"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:          v.GetBool("redis.enabled"),
			Host:             v.GetString("redis.host"),
			Port:             v.GetInt("redis.port"),
			Password:         v.GetString("redis.password"),
			DB:               v.GetInt("redis.db"),
			FallbackToMemory: v.GetBool("redis.fallback_to_memory"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Kafka: KafkaConfig{
			Brokers:     stringList(v, "kafka.brokers"),
			Topic:       v.GetString("kafka.topic"),
			GroupID:     v.GetString("kafka.group_id"),
			Username:    v.GetString("kafka.username"),
			Password:    v.GetString("kafka.password"),
			DialTimeout: v.GetDuration("kafka.dial_timeout"),
		},
		Consumer: ConsumerConfig{
			CommitInterval:      v.GetDuration("consumer.commit_interval"),
			MaxDeliveryAttempts: v.GetInt("consumer.max_delivery_attempts"),
			RetryBackoff:        v.GetDuration("consumer.retry_backoff"),
			MaxRetryBackoff:     v.GetDuration("consumer.max_retry_backoff"),
			DeadLetterEnabled:   v.GetBool("consumer.dead_letter_enabled"),
			DeadLetterTopic:     v.GetString("consumer.dead_letter_topic"),
		},
		Loyalty: LoyaltyConfig{
			EarnRate:         v.GetFloat64("loyalty.earn_rate"),
			CacheTTL:         v.GetDuration("loyalty.cache_ttl"),
			MaxWriteAttempts: v.GetInt("loyalty.max_write_attempts"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Swagger: SwaggerConfig{
			Enabled:    v.GetBool("swagger.enabled"),
			AllowedIPs: v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			ShutdownTimeout:       v.GetDuration("telemetry.shutdown_timeout"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
	}

	// a bare OTLP_ENDPOINT switched telemetry on in earlier deployments
	if os.Getenv(legacyEnv["telemetry.collector_endpoint"]) != "" && !v.IsSet("telemetry.enabled") {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.MetricsEnabled = true
		cfg.Telemetry.LogsEnabled = true
	}
	normalizeCollectorEndpoint(&cfg.Telemetry)

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "loyalty-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.ShutdownGrace == 0 {
		cfg.App.ShutdownGrace = 5 * time.Second
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "loyalty"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "order-completed"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "loyalty"
	}
	if cfg.Kafka.DialTimeout == 0 {
		cfg.Kafka.DialTimeout = 10 * time.Second
	}
	if cfg.Consumer.CommitInterval == 0 {
		cfg.Consumer.CommitInterval = time.Second
	}
	if cfg.Consumer.MaxDeliveryAttempts == 0 {
		cfg.Consumer.MaxDeliveryAttempts = 5
	}
	if cfg.Consumer.RetryBackoff == 0 {
		cfg.Consumer.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Consumer.MaxRetryBackoff == 0 {
		cfg.Consumer.MaxRetryBackoff = 30 * time.Second
	}
	if cfg.Consumer.DeadLetterTopic == "" {
		cfg.Consumer.DeadLetterTopic = cfg.Kafka.Topic + ".dlq"
	}
	if cfg.Loyalty.EarnRate == 0 {
		cfg.Loyalty.EarnRate = 0.5
	}
	if cfg.Loyalty.CacheTTL == 0 {
		cfg.Loyalty.CacheTTL = 600 * time.Second
	}
	if cfg.Loyalty.MaxWriteAttempts == 0 {
		cfg.Loyalty.MaxWriteAttempts = 3
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// CORS origins have no default; cross-origin requests stay blocked until configured
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = 2 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Loyalty.EarnRate <= 0 {
		return fmt.Errorf("loyalty.earn_rate must be positive, got %f", c.Loyalty.EarnRate)
	}
	if c.Loyalty.MaxWriteAttempts < 1 {
		return fmt.Errorf("loyalty.max_write_attempts must be at least 1")
	}
	if c.Consumer.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("consumer.max_delivery_attempts must be at least 1")
	}
	if c.Consumer.DeadLetterEnabled && c.Consumer.DeadLetterTopic == c.Kafka.Topic {
		return fmt.Errorf("consumer.dead_letter_topic must differ from kafka.topic")
	}
	if (c.Kafka.Username == "") != (c.Kafka.Password == "") {
		return fmt.Errorf("kafka.username and kafka.password must be set together")
	}

	if c.App.Env == "production" {
		if c.Database.URL == "" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled or have IP restriction in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SASLEnabled reports whether broker connections authenticate with SASL/PLAIN
func (k *KafkaConfig) SASLEnabled() bool {
	return k.Username != ""
}

// normalizeCollectorEndpoint accepts the URL form (http://host:4317) used by
// earlier deployments. The gRPC exporter wants host:port; http implies insecure.
func normalizeCollectorEndpoint(t *TelemetryConfig) {
	switch {
	case strings.HasPrefix(t.CollectorEndpoint, "http://"):
		t.CollectorEndpoint = strings.TrimPrefix(t.CollectorEndpoint, "http://")
		t.Insecure = true
	case strings.HasPrefix(t.CollectorEndpoint, "https://"):
		t.CollectorEndpoint = strings.TrimPrefix(t.CollectorEndpoint, "https://")
	}
	t.CollectorEndpoint = strings.TrimSuffix(t.CollectorEndpoint, "/")
}

// stringList reads a list that may be given as a TOML array or a comma separated string
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, splitList(item)...)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
