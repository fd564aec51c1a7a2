// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/listingharvest/crawler/internal/crawler"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Browser BrowserConfig `mapstructure:"browser"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SearchConfig describes what is collected and from where.
type SearchConfig struct {
	Phrase  string   `mapstructure:"phrase"`
	BaseURL string   `mapstructure:"base_url"`
	Regions []string `mapstructure:"regions"`
	// TotalTarget is the campaign-wide listing count to collect.
	TotalTarget int `mapstructure:"total_target"`
	// ExpectedYields maps region codes to their historical listing counts;
	// regions absent from the table use DefaultExpectedYield.
	ExpectedYields       map[string]int `mapstructure:"expected_yields"`
	DefaultExpectedYield int            `mapstructure:"default_expected_yield"`
}

// CrawlConfig governs retry, rotation, and pacing policy.
type CrawlConfig struct {
	MaxPagesPerRegion int   `mapstructure:"max_pages_per_region"`
	RetryBudget       int   `mapstructure:"retry_budget"`
	RotationMin       int   `mapstructure:"rotation_min"`
	RotationMax       int   `mapstructure:"rotation_max"`
	Seed              int64 `mapstructure:"seed"`

	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	PreNavDelayMin    time.Duration `mapstructure:"pre_nav_delay_min"`
	PreNavDelayMax    time.Duration `mapstructure:"pre_nav_delay_max"`
	PostLoadDelayMin  time.Duration `mapstructure:"post_load_delay_min"`
	PostLoadDelayMax  time.Duration `mapstructure:"post_load_delay_max"`
	InterPageDelayMin time.Duration `mapstructure:"inter_page_delay_min"`
	InterPageDelayMax time.Duration `mapstructure:"inter_page_delay_max"`
	RetryBackoffMin   time.Duration `mapstructure:"retry_backoff_min"`
	RetryBackoffMax   time.Duration `mapstructure:"retry_backoff_max"`
	RotationPauseMin  time.Duration `mapstructure:"rotation_pause_min"`
	RotationPauseMax  time.Duration `mapstructure:"rotation_pause_max"`
	InterRegionMin    time.Duration `mapstructure:"inter_region_delay_min"`
	InterRegionMax    time.Duration `mapstructure:"inter_region_delay_max"`
	HostMinInterval   time.Duration `mapstructure:"host_min_interval"`
}

// BrowserConfig controls headless Chrome behavior.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
}

// OutputConfig sets where results are persisted.
type OutputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// DBConfig controls the optional Postgres listing store. An empty DSN
// disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig controls the Prometheus scrape endpoint served while a
// campaign runs.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.phrase", "pool cleaning and maintenance")
	v.SetDefault("search.base_url", "https://www.yellowpages.com/search")
	v.SetDefault("search.regions", []string{"FL", "CA", "TX", "AZ", "NY", "NJ", "PA", "OH", "MI", "MA"})
	v.SetDefault("search.total_target", 300)
	v.SetDefault("search.expected_yields", map[string]int{
		"FL": 2800, "CA": 2800, "TX": 2800, "AZ": 2700, "NY": 1400,
		"NJ": 1400, "PA": 1200, "OH": 1100, "MI": 600, "MA": 500,
	})
	v.SetDefault("search.default_expected_yield", 500)

	v.SetDefault("crawl.max_pages_per_region", 50)
	v.SetDefault("crawl.retry_budget", 2)
	v.SetDefault("crawl.rotation_min", 2)
	v.SetDefault("crawl.rotation_max", 4)
	v.SetDefault("crawl.nav_timeout", "30s")
	v.SetDefault("crawl.wait_timeout", "15s")
	v.SetDefault("crawl.pre_nav_delay_min", "500ms")
	v.SetDefault("crawl.pre_nav_delay_max", "1500ms")
	v.SetDefault("crawl.post_load_delay_min", "2s")
	v.SetDefault("crawl.post_load_delay_max", "4s")
	v.SetDefault("crawl.inter_page_delay_min", "3s")
	v.SetDefault("crawl.inter_page_delay_max", "10s")
	v.SetDefault("crawl.retry_backoff_min", "20s")
	v.SetDefault("crawl.retry_backoff_max", "30s")
	v.SetDefault("crawl.rotation_pause_min", "3s")
	v.SetDefault("crawl.rotation_pause_max", "6s")
	v.SetDefault("crawl.inter_region_delay_min", "3s")
	v.SetDefault("crawl.inter_region_delay_max", "6s")
	v.SetDefault("crawl.host_min_interval", "1s")

	v.SetDefault("browser.headless", true)
	v.SetDefault("output.csv_path", "data/listings.csv")
	v.SetDefault("db.table", "listings")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Search.Phrase == "" {
		return fmt.Errorf("search.phrase must be set")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search.base_url must be set")
	}
	if len(c.Search.Regions) == 0 {
		return fmt.Errorf("search.regions must include at least one region")
	}
	if c.Search.TotalTarget <= 0 {
		return fmt.Errorf("search.total_target must be > 0")
	}
	if c.Search.DefaultExpectedYield <= 0 {
		return fmt.Errorf("search.default_expected_yield must be > 0")
	}
	if c.Crawl.MaxPagesPerRegion <= 0 {
		return fmt.Errorf("crawl.max_pages_per_region must be > 0")
	}
	if c.Crawl.RetryBudget < 0 {
		return fmt.Errorf("crawl.retry_budget must be >= 0")
	}
	if c.Crawl.RotationMin <= 0 || c.Crawl.RotationMax < c.Crawl.RotationMin {
		return fmt.Errorf("crawl rotation range [%d,%d] is invalid", c.Crawl.RotationMin, c.Crawl.RotationMax)
	}
	for _, r := range []struct {
		name     string
		min, max time.Duration
	}{
		{"pre_nav_delay", c.Crawl.PreNavDelayMin, c.Crawl.PreNavDelayMax},
		{"post_load_delay", c.Crawl.PostLoadDelayMin, c.Crawl.PostLoadDelayMax},
		{"inter_page_delay", c.Crawl.InterPageDelayMin, c.Crawl.InterPageDelayMax},
		{"retry_backoff", c.Crawl.RetryBackoffMin, c.Crawl.RetryBackoffMax},
		{"rotation_pause", c.Crawl.RotationPauseMin, c.Crawl.RotationPauseMax},
		{"inter_region_delay", c.Crawl.InterRegionMin, c.Crawl.InterRegionMax},
	} {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("crawl.%s range is invalid", r.name)
		}
	}
	if c.Output.CSVPath == "" {
		return fmt.Errorf("output.csv_path must be set")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics.enabled is true")
	}
	return nil
}

// Regions materializes the ordered region list with per-region expected
// yields from the configured table.
func (c Config) Regions() []crawler.Region {
	regions := make([]crawler.Region, 0, len(c.Search.Regions))
	for _, code := range c.Search.Regions {
		// Viper lowercases map keys, so match the table case-insensitively.
		yield, ok := c.Search.ExpectedYields[code]
		if !ok {
			yield, ok = c.Search.ExpectedYields[strings.ToLower(code)]
		}
		if !ok {
			yield = c.Search.DefaultExpectedYield
		}
		regions = append(regions, crawler.Region{Code: code, ExpectedYield: yield})
	}
	return regions
}

// ControllerConfig converts crawl knobs into the controller's policy config.
func (c Config) ControllerConfig() crawler.ControllerConfig {
	return crawler.ControllerConfig{
		MaxPages:       c.Crawl.MaxPagesPerRegion,
		RetryBudget:    c.Crawl.RetryBudget,
		RotationMin:    c.Crawl.RotationMin,
		RotationMax:    c.Crawl.RotationMax,
		InterPageDelay: crawler.DelayRange{Min: c.Crawl.InterPageDelayMin, Max: c.Crawl.InterPageDelayMax},
		RetryBackoff:   crawler.DelayRange{Min: c.Crawl.RetryBackoffMin, Max: c.Crawl.RetryBackoffMax},
		RotationPause:  crawler.DelayRange{Min: c.Crawl.RotationPauseMin, Max: c.Crawl.RotationPauseMax},
	}
}

// FetcherConfig converts crawl knobs into the page fetcher's config.
func (c Config) FetcherConfig() crawler.FetcherConfig {
	return crawler.FetcherConfig{
		BaseURL:         c.Search.BaseURL,
		SearchPhrase:    c.Search.Phrase,
		NavTimeout:      c.Crawl.NavTimeout,
		WaitTimeout:     c.Crawl.WaitTimeout,
		PreNavDelay:     crawler.DelayRange{Min: c.Crawl.PreNavDelayMin, Max: c.Crawl.PreNavDelayMax},
		PostLoadDelay:   crawler.DelayRange{Min: c.Crawl.PostLoadDelayMin, Max: c.Crawl.PostLoadDelayMax},
		HostMinInterval: c.Crawl.HostMinInterval,
	}
}

// CoordinatorConfig converts campaign knobs into the coordinator's config.
func (c Config) CoordinatorConfig() crawler.CoordinatorConfig {
	return crawler.CoordinatorConfig{
		TotalTarget:      c.Search.TotalTarget,
		InterRegionDelay: crawler.DelayRange{Min: c.Crawl.InterRegionMin, Max: c.Crawl.InterRegionMax},
	}
}
