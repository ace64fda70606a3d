package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Base      BaseConfig      `mapstructure:"base"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Feed      FeedConfig      `mapstructure:"feed"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

// BaseConfig describes the autoscaling Postgres endpoint the dashboard runs
// against and the retry/credential policy used to reach it.
type BaseConfig struct {
	Project  string `mapstructure:"project"`
	Branch   string `mapstructure:"branch"`
	Database string `mapstructure:"database"`
	Port     uint16 `mapstructure:"port"`

	// Legacy/provisioned path: when HostOverride is set, endpoint discovery
	// is skipped entirely.
	HostOverride string `mapstructure:"host_override"`
	UserOverride string `mapstructure:"user_override"`

	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`

	// Tokens live for TokenLifetime but are proactively reissued once older
	// than FreshnessWindow, so a connection attempt never presents a token
	// close to expiry.
	TokenLifetime   time.Duration `mapstructure:"token_lifetime"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`

	PoolMaxConns int32 `mapstructure:"pool_max_conns"`
}

// WorkspaceConfig points at the control plane that issues database
// credentials and enumerates compute endpoints.
type WorkspaceConfig struct {
	Host    string        `mapstructure:"host"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type FeedConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BufferSize   int           `mapstructure:"buffer_size"`
	BatchLimit   int           `mapstructure:"batch_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("TIDE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")

	viper.SetDefault("base.branch", "production")
	viper.SetDefault("base.database", "tidebase_postgres")
	viper.SetDefault("base.port", 5432)
	viper.SetDefault("base.connect_attempts", 3)
	viper.SetDefault("base.connect_timeout", 10*time.Second)
	viper.SetDefault("base.backoff_base", 2*time.Second)
	viper.SetDefault("base.token_lifetime", time.Hour)
	viper.SetDefault("base.freshness_window", 50*time.Minute)
	viper.SetDefault("base.pool_max_conns", 4)

	viper.SetDefault("workspace.timeout", 30*time.Second)

	viper.SetDefault("feed.poll_interval", 5*time.Second)
	viper.SetDefault("feed.buffer_size", 1000)
	viper.SetDefault("feed.batch_limit", 200)

	viper.SetDefault("ratelimit.requests_per_second", 5)
}
