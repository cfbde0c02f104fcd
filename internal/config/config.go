package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Pipeline  PipelineConfig
	R2        R2Config
	Retry     RetryConfig
	Queue     QueueConfig
	Snapshot  SnapshotConfig
	Redirect  RedirectConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ProcessPerHour int
	GamesPerMin    int
	SongsPerMin    int
}

// StoreConfig points at the managed quiz data store's REST API.
type StoreConfig struct {
	BaseURL    string
	ServiceKey string
}

// PipelineConfig points at the clip extraction service. CallbackURL is the
// publicly reachable progress ingress handed to the pipeline on each run.
type PipelineConfig struct {
	BaseURL     string
	Token       string
	CallbackURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	ClipURLTTL      time.Duration
}

// RetryConfig bounds the inline retry loop of the write-back layer.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// QueueConfig tunes the failed-operation queue and its sweeper.
type QueueConfig struct {
	SweepInterval time.Duration
	MaxAttempts   int
	MaxAge        time.Duration
	MaxSize       int
}

// SnapshotConfig tunes the progress snapshot janitor.
type SnapshotConfig struct {
	JanitorInterval time.Duration
	TerminalTTL     time.Duration
}

// RedirectConfig tunes completion routing.
type RedirectConfig struct {
	Delay time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("STORE_SERVICE_KEY")
	readSecret("PIPELINE_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.process_per_hour", "RATELIMIT_PROCESS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.games_per_min", "RATELIMIT_GAMES_PER_MIN")
	_ = viper.BindEnv("ratelimit.songs_per_min", "RATELIMIT_SONGS_PER_MIN")
	_ = viper.BindEnv("store.base_url", "STORE_BASE_URL")
	_ = viper.BindEnv("store.service_key", "STORE_SERVICE_KEY")
	_ = viper.BindEnv("pipeline.base_url", "PIPELINE_BASE_URL")
	_ = viper.BindEnv("pipeline.token", "PIPELINE_TOKEN")
	_ = viper.BindEnv("pipeline.callback_url", "PIPELINE_CALLBACK_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("r2.clip_url_ttl", "R2_CLIP_URL_TTL")
	_ = viper.BindEnv("retry.max_attempts", "RETRY_MAX_ATTEMPTS")
	_ = viper.BindEnv("retry.base_backoff", "RETRY_BASE_BACKOFF")
	_ = viper.BindEnv("retry.max_backoff", "RETRY_MAX_BACKOFF")
	_ = viper.BindEnv("queue.sweep_interval", "QUEUE_SWEEP_INTERVAL")
	_ = viper.BindEnv("queue.max_attempts", "QUEUE_MAX_ATTEMPTS")
	_ = viper.BindEnv("queue.max_age", "QUEUE_MAX_AGE")
	_ = viper.BindEnv("queue.max_size", "QUEUE_MAX_SIZE")
	_ = viper.BindEnv("snapshot.janitor_interval", "SNAPSHOT_JANITOR_INTERVAL")
	_ = viper.BindEnv("snapshot.terminal_ttl", "SNAPSHOT_TERMINAL_TTL")
	_ = viper.BindEnv("redirect.delay", "REDIRECT_DELAY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.process_per_hour", 10)
	viper.SetDefault("ratelimit.games_per_min", 30)
	viper.SetDefault("ratelimit.songs_per_min", 60)

	// Pipeline defaults
	viper.SetDefault("pipeline.base_url", "http://localhost:8085")
	viper.SetDefault("pipeline.callback_url", "http://localhost:8000/internal/progress")

	// R2 defaults
	viper.SetDefault("r2.clip_url_ttl", "1h")

	// Write-back defaults
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_backoff", "250ms")
	viper.SetDefault("retry.max_backoff", "5s")
	viper.SetDefault("queue.sweep_interval", "30s")
	viper.SetDefault("queue.max_attempts", 5)
	viper.SetDefault("queue.max_age", "30m")
	viper.SetDefault("queue.max_size", 1000)

	// Snapshot and redirect defaults
	viper.SetDefault("snapshot.janitor_interval", "5m")
	viper.SetDefault("snapshot.terminal_ttl", "15m")
	viper.SetDefault("redirect.delay", "2500ms")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ProcessPerHour: viper.GetInt("ratelimit.process_per_hour"),
			GamesPerMin:    viper.GetInt("ratelimit.games_per_min"),
			SongsPerMin:    viper.GetInt("ratelimit.songs_per_min"),
		},
		Store: StoreConfig{
			BaseURL:    viper.GetString("store.base_url"),
			ServiceKey: viper.GetString("store.service_key"),
		},
		Pipeline: PipelineConfig{
			BaseURL:     viper.GetString("pipeline.base_url"),
			Token:       viper.GetString("pipeline.token"),
			CallbackURL: viper.GetString("pipeline.callback_url"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
			ClipURLTTL:      viper.GetDuration("r2.clip_url_ttl"),
		},
		Retry: RetryConfig{
			MaxAttempts: viper.GetInt("retry.max_attempts"),
			BaseBackoff: viper.GetDuration("retry.base_backoff"),
			MaxBackoff:  viper.GetDuration("retry.max_backoff"),
		},
		Queue: QueueConfig{
			SweepInterval: viper.GetDuration("queue.sweep_interval"),
			MaxAttempts:   viper.GetInt("queue.max_attempts"),
			MaxAge:        viper.GetDuration("queue.max_age"),
			MaxSize:       viper.GetInt("queue.max_size"),
		},
		Snapshot: SnapshotConfig{
			JanitorInterval: viper.GetDuration("snapshot.janitor_interval"),
			TerminalTTL:     viper.GetDuration("snapshot.terminal_ttl"),
		},
		Redirect: RedirectConfig{
			Delay: viper.GetDuration("redirect.delay"),
		},
	}

	return cfg, nil
}
