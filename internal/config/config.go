// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory" // nothing survives a restart
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Owner     OwnerConfig     `mapstructure:"owner"`
	ForceJoin ForceJoinConfig `mapstructure:"force_join"`
	LogGroup  LogGroupConfig  `mapstructure:"log_group"`
	Chats     ChatsConfig     `mapstructure:"chats"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// OwnerConfig identifies the single owner account.
type OwnerConfig struct {
	ID int64 `mapstructure:"id"`
}

// ForceJoinConfig names the channel users must join before generating.
// An empty channel disables the gate.
type ForceJoinConfig struct {
	Channel string `mapstructure:"channel"`
}

// LogGroupConfig holds the audit channel. Zero disables delivery.
type LogGroupConfig struct {
	ID int64 `mapstructure:"id"`
}

// ChatsConfig restricts the chats the bot answers in.
type ChatsConfig struct {
	Allowed []int64 `mapstructure:"allowed"`
}

// StorageConfig selects the persistence engine.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ProviderConfig holds the image provider endpoint.
type ProviderConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	QueryParam string        `mapstructure:"query_param"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// QuotaConfig holds generation limits and starting credits.
type QuotaConfig struct {
	DailyLimit      int64  `mapstructure:"daily_limit"`
	InitialCredits  int64  `mapstructure:"initial_credits"`
	ReferredCredits int64  `mapstructure:"referred_credits"`
	Timezone        string `mapstructure:"timezone"`
}

// ReferralConfig holds referral code settings.
type ReferralConfig struct {
	Bonus         int64         `mapstructure:"bonus"`
	TTL           time.Duration `mapstructure:"ttl"`
	CodeLength    int           `mapstructure:"code_length"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// BroadcastConfig holds the pacing between broadcast messages.
type BroadcastConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// AuditConfig holds audit notifier settings.
type AuditConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the quota timezone. Empty and "Local" mean the process zone.
func (q *QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" || q.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone %q: %w", q.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from a .env file, the YAML config file and
// environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, OWNER_ID, LOG_GROUP_ID, MONGO_URI
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("mongo.database", "MONGO_DATABASE", "DATABASE_NAME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
// Every key is registered so that AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.poll_timeout", "10s")
	v.SetDefault("owner.id", 0)
	v.SetDefault("force_join.channel", "")
	v.SetDefault("log_group.id", 0)
	v.SetDefault("chats.allowed", []int64{})

	v.SetDefault("storage.driver", DriverPostgres)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "imagebot")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "imagebot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "image_bot")
	v.SetDefault("mongo.timeout", "10s")

	v.SetDefault("provider.endpoint", "")
	v.SetDefault("provider.query_param", "img")
	v.SetDefault("provider.timeout", "30s")

	// Quota defaults
	v.SetDefault("quota.daily_limit", 10)
	v.SetDefault("quota.initial_credits", 10)
	v.SetDefault("quota.referred_credits", 20)
	v.SetDefault("quota.timezone", "Local")

	v.SetDefault("referral.bonus", 20)
	v.SetDefault("referral.ttl", "15m")
	v.SetDefault("referral.code_length", 8)
	v.SetDefault("referral.purge_interval", "10m")

	v.SetDefault("broadcast.delay", "50ms")

	v.SetDefault("audit.queue_size", 256)
	v.SetDefault("audit.timeout", "10s")

	v.SetDefault("log.level", "info")
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required"))
	}
	if c.Owner.ID == 0 {
		errs = append(errs, errors.New("owner.id is required"))
	}
	if c.Provider.Endpoint == "" {
		errs = append(errs, errors.New("provider.endpoint is required"))
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q, %q or %q, got %q", DriverPostgres, DriverMongo, DriverMemory, c.Storage.Driver))
	}
	if c.Quota.DailyLimit < 0 || c.Quota.InitialCredits < 0 || c.Quota.ReferredCredits < 0 {
		errs = append(errs, errors.New("quota values must not be negative"))
	}
	if c.Referral.Bonus <= 0 {
		errs = append(errs, errors.New("referral.bonus must be positive"))
	}
	if c.Referral.TTL <= 0 {
		errs = append(errs, errors.New("referral.ttl must be positive"))
	}
	if c.Referral.CodeLength < 4 || c.Referral.CodeLength > 32 {
		errs = append(errs, errors.New("referral.code_length must be between 4 and 32"))
	}
	if _, err := c.Quota.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsOwner reports whether the user is the configured owner.
func (c *Config) IsOwner(userID int64) bool {
	return c.Owner.ID != 0 && c.Owner.ID == userID
}

// IsChatAllowed checks if a chat ID is in the allowed list.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty list means all chats are allowed
	if len(c.Chats.Allowed) == 0 {
		return true
	}
	for _, id := range c.Chats.Allowed {
		if id == chatID {
			return true
		}
	}
	return false
}
