package config

import (
	"fmt"
	"net/url"
	"time"
)

// Price error policies.
const (
	PriceErrorsSkip  = "skip"
	PriceErrorsAbort = "abort"
)

// Selectors names the tag/class pairs used to locate card parts on a results page.
// Class may hold several space separated classes, all of which must match.
type Selectors struct {
	CardTag        string `yaml:"card_tag"`
	CardClass      string `yaml:"card_class"`
	ContainerTag   string `yaml:"container_tag"`
	ContainerClass string `yaml:"container_class"`
	NameTag        string `yaml:"name_tag"`
	NameClass      string `yaml:"name_class"`
	PriceTag       string `yaml:"price_tag"`
	PriceClass     string `yaml:"price_class"`
	StateTag       string `yaml:"state_tag"`
	StateClass     string `yaml:"state_class"`
	IDAttr         string `yaml:"id_attr"`
	LinkAttr       string `yaml:"link_attr"`
	ImageAttr      string `yaml:"image_attr"`
	PageParameter  string `yaml:"page_parameter"`
}

// Config holds scraper configuration.
type Config struct {
	BaseURL          string    `yaml:"base_url"`
	ListingURL       string    `yaml:"listing_url"`
	GoodsCount       int       `yaml:"goods_count"`
	PrintResult      bool      `yaml:"print_result"`
	MaxPages         int       `yaml:"max_pages"`
	EmptyPageEndsRun bool      `yaml:"empty_page_ends_run"`
	PriceErrorPolicy string    `yaml:"price_error_policy"`
	FreeMarker       string    `yaml:"free_marker"`
	Currency         string    `yaml:"currency"`
	Selectors        Selectors `yaml:"selectors"`

	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	RandomDelay       Duration `yaml:"random_delay"`
	UserAgent         string   `yaml:"user_agent"`
	RespectRobotsTxt  bool     `yaml:"respect_robots_txt"`
	DedupeMaxSize     int      `yaml:"dedupe_max_size"`

	ResultsDir     string `yaml:"results_dir"`
	OutputFormat   string `yaml:"output_format"` // csv, json, or dual
	PostgresDSN    string `yaml:"postgres_dsn"`
	PostgresSchema string `yaml:"postgres_schema"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultSelectors returns the selectors matching the OLX results layout.
func DefaultSelectors() Selectors {
	return Selectors{
		CardTag:        "div",
		CardClass:      "css-1sw7q4x",
		ContainerTag:   "div",
		ContainerClass: "css-u2ayx9",
		NameTag:        "h6",
		NameClass:      "css-16v5mdi er34gjf0",
		PriceTag:       "p",
		PriceClass:     "css-10b0gli er34gjf0",
		StateTag:       "span",
		StateClass:     "css-3lkihg",
		IDAttr:         "id",
		LinkAttr:       "href",
		ImageAttr:      "src",
		PageParameter:  "page",
	}
}

// DefaultConfig returns defaults for the OLX listing.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.olx.pl",
		ListingURL:       "https://www.olx.pl/oferty/?search%5Border%5D=created_at:desc",
		GoodsCount:       200,
		PrintResult:      false,
		MaxPages:         0,
		EmptyPageEndsRun: false,
		PriceErrorPolicy: PriceErrorsSkip,
		FreeMarker:       "Za darmo",
		Currency:         "zł",
		Selectors:        DefaultSelectors(),
		Timeout:          DurationFrom(10 * time.Second),
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		ResultsDir:       "results",
		OutputFormat:     "csv",
		PostgresSchema:   "public",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if err := validateURL("listing URL", c.ListingURL); err != nil {
		return err
	}
	if c.GoodsCount < 0 {
		return fmt.Errorf("goods count cannot be negative")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.PriceErrorPolicy != PriceErrorsSkip && c.PriceErrorPolicy != PriceErrorsAbort {
		return fmt.Errorf("price error policy must be skip or abort")
	}
	if c.Currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if c.Selectors.CardTag == "" || c.Selectors.ContainerTag == "" {
		return fmt.Errorf("card and container selectors cannot be empty")
	}
	if c.Selectors.PageParameter == "" {
		return fmt.Errorf("page parameter cannot be empty")
	}
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.RandomDelay.Duration < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results dir cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PostgresDSN != "" && c.PostgresSchema == "" {
		return fmt.Errorf("postgres schema cannot be empty when a DSN is set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
