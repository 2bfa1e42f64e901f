package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Server struct {
	BindAddr string `mapstructure:"bindAddr"`
	BindPort int    `mapstructure:"bindPort"`
}

type Backend struct {
	// BaseURL of the enrollment platform's REST API. When empty the
	// service runs standalone and keeps orders in its own Postgres.
	BaseURL string `mapstructure:"baseUrl"`
}

type Stripe struct {
	SecretKey string `mapstructure:"secretKey"`
	Currency  string `mapstructure:"currency"`
}

type Postgres struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	DBName  string `mapstructure:"dbName"`
	Options string `mapstructure:"options"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Checkout struct {
	// ProcessingFeePercent is applied to the post-discount amount.
	ProcessingFeePercent float64 `mapstructure:"processingFeePercent"`
	// SiblingTiers holds the discount rate per selection position,
	// index 0 = first child. Positions past the end reuse the last
	// entry. Kept in config so it can be varied without a rebuild and
	// stays in sync with the backend's authoritative table.
	SiblingTiers []float64 `mapstructure:"siblingTiers"`
	// SessionTTLSeconds is how long an idle checkout session is kept.
	SessionTTLSeconds int `mapstructure:"sessionTtlSeconds"`
	// CapacityCacheSeconds is the TTL for cached capacity checks.
	CapacityCacheSeconds int `mapstructure:"capacityCacheSeconds"`
}

type Config struct {
	Server   Server   `mapstructure:"server"`
	Backend  Backend  `mapstructure:"backend"`
	Stripe   Stripe   `mapstructure:"stripe"`
	Postgres Postgres `mapstructure:"postgres"`
	Redis    Redis    `mapstructure:"redis"`
	Checkout Checkout `mapstructure:"checkout"`
}

// PostgresConnStr builds the pgx connection string from the configured
// values, the same shape the userdata layer always used.
func (c Config) PostgresConnStr() string {
	return fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?%v",
		c.Postgres.User,
		c.Postgres.Pass,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.Options,
	)
}

// LoadConfigYaml reads config.yaml from the working directory (or the
// file set via ENROLL_CONFIG) and unmarshals it into a Config.
func LoadConfigYaml() (conf Config, err error) {
	v := viper.New()
	if path := os.Getenv("ENROLL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("enroll")
	v.AutomaticEnv()

	v.SetDefault("server.bindAddr", "0.0.0.0")
	v.SetDefault("server.bindPort", 8080)
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("checkout.processingFeePercent", 2.9)
	v.SetDefault("checkout.siblingTiers", []float64{0, 0.25, 0.35, 0.45})
	v.SetDefault("checkout.sessionTtlSeconds", 1800)
	v.SetDefault("checkout.capacityCacheSeconds", 30)
	v.SetDefault("redis.addr", "")
	v.SetDefault("postgres.options", "sslmode=disable")

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, fmt.Errorf("failed to read config: %v", err.Error())
		}
		// no config file is fine; env vars and defaults still apply
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return conf, fmt.Errorf("failed to unmarshal config: %v", err.Error())
	}

	return conf, nil
}
