package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from the file named by FOO_FILE into FOO,
// unless FOO is already set.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Grading   GradingConfig
	Poller    PollerConfig
	Results   ResultsConfig
	R2        R2Config
	Notify    NotifyConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	JobTTL   time.Duration
}

type AuthConfig struct {
	Enabled bool
	Secret  string
}

type RateLimitConfig struct {
	SubmitPerMin int
	ParsePerMin  int
}

// GradingConfig points at the backend that runs the AI grading.
type GradingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PollerConfig holds the status polling policy.
type PollerConfig struct {
	StuckThreshold     time.Duration
	GracePeriod        time.Duration
	ExpectedDuration   time.Duration
	CompletedRetention time.Duration
	JanitorInterval    time.Duration
}

type ResultsConfig struct {
	CacheTTL time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type NotifyConfig struct {
	Icon string
}

// IsConfigured reports whether report archiving to R2 can be enabled.
func (c R2Config) IsConfigured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GRADING_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("redis.job_ttl", "REDIS_JOB_TTL")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("auth.secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = v.BindEnv("ratelimit.parse_per_min", "RATELIMIT_PARSE_PER_MIN")
	_ = v.BindEnv("grading.base_url", "GRADING_BASE_URL")
	_ = v.BindEnv("grading.api_key", "GRADING_API_KEY")
	_ = v.BindEnv("grading.timeout", "GRADING_TIMEOUT")
	_ = v.BindEnv("poller.stuck_threshold", "POLLER_STUCK_THRESHOLD")
	_ = v.BindEnv("poller.grace_period", "POLLER_GRACE_PERIOD")
	_ = v.BindEnv("poller.expected_duration", "POLLER_EXPECTED_DURATION")
	_ = v.BindEnv("poller.completed_retention", "POLLER_COMPLETED_RETENTION")
	_ = v.BindEnv("poller.janitor_interval", "POLLER_JANITOR_INTERVAL")
	_ = v.BindEnv("results.cache_ttl", "RESULTS_CACHE_TTL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("notify.icon", "NOTIFY_ICON")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.job_ttl", "24h")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "change-me-in-production")
	v.SetDefault("ratelimit.submit_per_min", 20)
	v.SetDefault("ratelimit.parse_per_min", 60)

	// Grading backend defaults
	v.SetDefault("grading.base_url", "http://localhost:3000")
	v.SetDefault("grading.timeout", "30s")

	// Poller defaults
	v.SetDefault("poller.stuck_threshold", "120s")
	v.SetDefault("poller.grace_period", "300s")
	v.SetDefault("poller.expected_duration", "90s")
	v.SetDefault("poller.completed_retention", "5m")
	v.SetDefault("poller.janitor_interval", "30s")

	v.SetDefault("results.cache_ttl", "168h")
	v.SetDefault("notify.icon", "/icons/card-graded.png")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			JobTTL:   v.GetDuration("redis.job_ttl"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
			Secret:  v.GetString("auth.secret"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: v.GetInt("ratelimit.submit_per_min"),
			ParsePerMin:  v.GetInt("ratelimit.parse_per_min"),
		},
		Grading: GradingConfig{
			BaseURL: strings.TrimRight(v.GetString("grading.base_url"), "/"),
			APIKey:  v.GetString("grading.api_key"),
			Timeout: v.GetDuration("grading.timeout"),
		},
		Poller: PollerConfig{
			StuckThreshold:     v.GetDuration("poller.stuck_threshold"),
			GracePeriod:        v.GetDuration("poller.grace_period"),
			ExpectedDuration:   v.GetDuration("poller.expected_duration"),
			CompletedRetention: v.GetDuration("poller.completed_retention"),
			JanitorInterval:    v.GetDuration("poller.janitor_interval"),
		},
		Results: ResultsConfig{
			CacheTTL: v.GetDuration("results.cache_ttl"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Notify: NotifyConfig{
			Icon: v.GetString("notify.icon"),
		},
	}

	return cfg, nil
}
