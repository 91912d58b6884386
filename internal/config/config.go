package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Crawler     Crawler     `mapstructure:"crawler"`
	Venue       Venue       `mapstructure:"venue"`
	Aggregation Aggregation `mapstructure:"aggregation"`
	Schedule    Schedule    `mapstructure:"schedule"`
	Notify      Notify      `mapstructure:"notify"`
	Logger      Logger      `mapstructure:"logger"`
	Server      Server      `mapstructure:"server"`
	Cache       Cache       `mapstructure:"cache"`
	Database    Database    `mapstructure:"database"`
}

// Crawler holds the configuration for the top-list page navigation.
type Crawler struct {
	ListURL          string        `mapstructure:"list_url"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
	Headless         bool          `mapstructure:"headless"`
	UserAgent        string        `mapstructure:"user_agent"`
	RowsPerSecond    float64       `mapstructure:"rows_per_second"`
	ListSelector     string        `mapstructure:"list_selector"`
	RowSelector      string        `mapstructure:"row_selector"`
	DetailSelector   string        `mapstructure:"detail_selector"`
	DetailLinkColumn int           `mapstructure:"detail_link_column"`
	// Dedupe skips rows whose (stock, date, reason) is already stored.
	Dedupe bool `mapstructure:"dedupe"`
}

// Venue maps stock code prefixes to exchange venues.
type Venue struct {
	Prefixes map[string]string `mapstructure:"prefixes"`
	Fallback string            `mapstructure:"fallback"`
}

// Aggregation holds the configuration for the trader statistics rollup.
type Aggregation struct {
	WindowDays int `mapstructure:"window_days"`
	Workers    int `mapstructure:"workers"`
}

// Schedule holds cron specs (with seconds) for the periodic jobs.
type Schedule struct {
	Crawl     string `mapstructure:"crawl"`
	Aggregate string `mapstructure:"aggregate"`
	Timezone  string `mapstructure:"timezone"`
}

// Notify holds the configuration for the run report webhook.
type Notify struct {
	WebhookURL     string  `mapstructure:"webhook_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the query API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Cache holds the redis settings used by the query API.
type Cache struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "toplist.db")

	v.SetDefault("crawler.list_url", "http://data.eastmoney.com/stock/tradedetail.html")
	v.SetDefault("crawler.wait_timeout", 10*time.Second)
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.rows_per_second", 2)
	v.SetDefault("crawler.list_selector", ".table-list-tbody")
	v.SetDefault("crawler.row_selector", ".table-list-tbody tr")
	v.SetDefault("crawler.detail_selector", ".detail-table")
	v.SetDefault("crawler.detail_link_column", 9)
	v.SetDefault("crawler.dedupe", false)

	v.SetDefault("venue.prefixes", map[string]string{"6": "SH"})
	v.SetDefault("venue.fallback", "SZ")

	v.SetDefault("aggregation.window_days", 90)
	v.SetDefault("aggregation.workers", 4)

	// Weekdays after the 15:00 close, and nightly.
	v.SetDefault("schedule.crawl", "0 30 15 * * 1-5")
	v.SetDefault("schedule.aggregate", "0 30 0 * * *")
	v.SetDefault("schedule.timezone", "Asia/Shanghai")

	v.SetDefault("notify.rate_limit", 1)
	v.SetDefault("notify.rate_limit_burst", 1)

	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.ttl_seconds", 300)
}
