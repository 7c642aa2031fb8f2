package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is built once at
// startup and passed by reference; nothing reads viper after load.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Strategy Strategy `mapstructure:"strategy"`
	Trading  Trading  `mapstructure:"trading"`
	Telegram Telegram `mapstructure:"telegram"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	RequestTimeout int     `mapstructure:"request_timeout"` // seconds
}

// Strategy holds the ALMA supertrend parameters.
type Strategy struct {
	WindowLength int     `mapstructure:"window_length"`
	Offset       float64 `mapstructure:"offset"`
	Sigma        float64 `mapstructure:"sigma"`
	StdDevLength int     `mapstructure:"stddev_length"`
	Multiplier   float64 `mapstructure:"multiplier"`
}

// MarketSeed describes one tradable symbol from the config file. Markets are
// seeded into the database on startup; the database is authoritative after that.
type MarketSeed struct {
	Symbol   string  `mapstructure:"symbol"`
	Quantity float64 `mapstructure:"quantity"`
	BuyAll   bool    `mapstructure:"buy_all"`
}

// Trading holds the configuration for the trading pass.
type Trading struct {
	QuoteAsset     string       `mapstructure:"quote_asset"`
	KlinesInterval string       `mapstructure:"klines_interval"`
	KlinesLimit    int          `mapstructure:"klines_limit"`
	MinKlines      int          `mapstructure:"min_klines"`
	FeeRate        float64      `mapstructure:"fee_rate"`
	DryRun         bool         `mapstructure:"dry_run"`
	LockStaleAfter int          `mapstructure:"lock_stale_after"` // minutes
	Markets        []MarketSeed `mapstructure:"markets"`
}

// Telegram holds tokens and chat ids for the two notification channels.
type Telegram struct {
	Enabled     bool   `mapstructure:"enabled"`
	MainToken   string `mapstructure:"main_token"`
	ErrorToken  string `mapstructure:"error_token"`
	MainChatID  int64  `mapstructure:"main_chat_id"`
	ErrorChatID int64  `mapstructure:"error_chat_id"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20)      // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5) // burst size
	viper.SetDefault("binance.request_timeout", 15)

	// ALMA supertrend defaults, tuned for daily bars.
	viper.SetDefault("strategy.window_length", 5)
	viper.SetDefault("strategy.offset", 0.85)
	viper.SetDefault("strategy.sigma", 2.75)
	viper.SetDefault("strategy.stddev_length", 20)
	viper.SetDefault("strategy.multiplier", 1.8)

	viper.SetDefault("trading.quote_asset", "USDT")
	viper.SetDefault("trading.klines_interval", "1d")
	viper.SetDefault("trading.klines_limit", 750)
	viper.SetDefault("trading.min_klines", 100)
	viper.SetDefault("trading.fee_rate", 0.001)
	viper.SetDefault("trading.dry_run", true)
	viper.SetDefault("trading.lock_stale_after", 120)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
