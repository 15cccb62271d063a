package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

// FeesConfig is the fee schedule applied at release time. Rates are decimal
// fractions of the transaction amount (0.02 = 2%). The treasury user owns
// the wallets that retained fees are credited to.
type FeesConfig struct {
	PlatformRate   string `mapstructure:"platform_rate"`
	ProcessorRate  string `mapstructure:"processor_rate"`
	TreasuryUserID string `mapstructure:"treasury_user_id"`
}

// PlatformRateDecimal parses the platform fee rate.
func (f FeesConfig) PlatformRateDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.PlatformRate)
}

// ProcessorRateDecimal parses the processor fee rate.
func (f FeesConfig) ProcessorRateDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.ProcessorRate)
}

// TreasuryUUID parses the treasury user id.
func (f FeesConfig) TreasuryUUID() (uuid.UUID, error) {
	return uuid.Parse(f.TreasuryUserID)
}

// Validate checks that the fee schedule is usable: both rates parse, are
// non-negative, and leave a positive payout.
func (f FeesConfig) Validate() error {
	platform, err := f.PlatformRateDecimal()
	if err != nil {
		return fmt.Errorf("invalid fees.platform_rate: %w", err)
	}
	processor, err := f.ProcessorRateDecimal()
	if err != nil {
		return fmt.Errorf("invalid fees.processor_rate: %w", err)
	}
	if platform.IsNegative() || processor.IsNegative() {
		return fmt.Errorf("fee rates must not be negative")
	}
	if platform.Add(processor).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rates must sum to less than 1")
	}
	if _, err := f.TreasuryUUID(); err != nil {
		return fmt.Errorf("invalid fees.treasury_user_id: %w", err)
	}
	return nil
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TB_ (TrustBridge).
// Nested keys use underscore: TB_DATABASE_HOST, TB_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "trustbridge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "trustbridge")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("fees.platform_rate", "0.02")
	v.SetDefault("fees.processor_rate", "0.01")
	v.SetDefault("fees.treasury_user_id", "00000000-0000-0000-0000-000000000001")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TB_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("validating fee schedule: %w", err)
	}

	return &cfg, nil
}
