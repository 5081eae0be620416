package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/aluiziolira/go-scrape-olx/models"
	"github.com/aluiziolira/go-scrape-olx/pipeline"
	"github.com/aluiziolira/go-scrape-olx/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// flagValues mirrors the command line; only flags the user actually set are applied.
type flagValues struct {
	baseURL       string
	listingURL    string
	goods         int
	pages         int
	print         bool
	endOnEmpty    bool
	priceErrors   string
	rps           float64
	randomDelay   time.Duration
	timeout       time.Duration
	respectRobots bool
	dedupe        int
	resultsDir    string
	format        string
	pgDSN         string
	metricsAddr   string
	verbose       bool
}

func main() {
	defaults := config.DefaultConfig()
	var v flagValues

	configPath := flag.String("config", "", "YAML config file applied on top of the defaults")
	flag.StringVar(&v.baseURL, "base-url", defaults.BaseURL, "Site root used to resolve relative links")
	flag.StringVar(&v.listingURL, "listing-url", defaults.ListingURL, "First results page")
	flag.IntVar(&v.goods, "goods", defaults.GoodsCount, "Number of cards to collect")
	flag.IntVar(&v.pages, "pages", defaults.MaxPages, "Maximum result pages to visit (0 = no limit)")
	flag.BoolVar(&v.print, "print", defaults.PrintResult, "Print collected cards as JSON after the run")
	flag.BoolVar(&v.endOnEmpty, "end-on-empty", defaults.EmptyPageEndsRun, "Treat an empty page after the first as the end of results")
	flag.StringVar(&v.priceErrors, "price-errors", defaults.PriceErrorPolicy, "Unreadable price handling: skip or abort")
	flag.Float64Var(&v.rps, "rps", defaults.RequestsPerSecond, "Maximum requests per second (0 = unpaced)")
	flag.DurationVar(&v.randomDelay, "random-delay", defaults.RandomDelay.Duration, "Random jitter added before each request")
	flag.DurationVar(&v.timeout, "timeout", defaults.Timeout.Duration, "Request timeout")
	flag.BoolVar(&v.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flag.IntVar(&v.dedupe, "dedupe", defaults.DedupeMaxSize, "Remember this many card keys and drop repeats (0 = off)")
	flag.StringVar(&v.resultsDir, "results", defaults.ResultsDir, "Directory for result files")
	flag.StringVar(&v.format, "format", defaults.OutputFormat, "Output format: csv, json, or dual")
	flag.StringVar(&v.pgDSN, "pg-dsn", defaults.PostgresDSN, "Postgres DSN; when set, rows are mirrored to the database")
	flag.StringVar(&v.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.BoolVar(&v.verbose, "v", defaults.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, setFlags(flag.CommandLine), v)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("listing_url", cfg.ListingURL),
		slog.Int("goods", cfg.GoodsCount),
		slog.Int("max_pages", cfg.MaxPages),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := scraper.NewCollector(cfg, nil)
	if err != nil {
		slog.Error("initialising collector", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(collector.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer shutdownMetrics(metricsServer)

	result, err := collector.Run(ctx)
	if err != nil {
		slog.Error("scraping failed",
			slog.String("stop_reason", result.StopReason),
			slog.Int("collected", len(result.Cards)),
			slog.Any("error", err),
		)
		dumpCards(os.Stdout, cfg.PrintResult, result)
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	sink := pipeline.NewSink(cfg)
	if cfg.PostgresDSN != "" {
		db, err := pipeline.NewPostgresWriter(ctx, cfg.PostgresDSN, cfg.PostgresSchema)
		if err != nil {
			slog.Error("connecting to postgres", slog.Any("error", err))
			shutdownMetrics(metricsServer)
			os.Exit(1)
		}
		defer db.Close()
		sink.DB = db
	}

	path, err := sink.Write(ctx, result.Cards)
	switch {
	case errors.Is(err, pipeline.ErrEmptyResult):
		slog.Warn("nothing collected, no results file written")
	case err != nil:
		slog.Error("saving results", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	dumpCards(os.Stdout, cfg.PrintResult, result)
	printSummary(os.Stdout, result, path)
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFlags copies explicitly set flags over cfg, so they win over the file and environment.
func applyFlags(cfg *config.Config, set map[string]bool, v flagValues) {
	if set["base-url"] {
		cfg.BaseURL = v.baseURL
	}
	if set["listing-url"] {
		cfg.ListingURL = v.listingURL
	}
	if set["goods"] {
		cfg.GoodsCount = v.goods
	}
	if set["pages"] {
		cfg.MaxPages = v.pages
	}
	if set["print"] {
		cfg.PrintResult = v.print
	}
	if set["end-on-empty"] {
		cfg.EmptyPageEndsRun = v.endOnEmpty
	}
	if set["price-errors"] {
		cfg.PriceErrorPolicy = strings.ToLower(v.priceErrors)
	}
	if set["rps"] {
		cfg.RequestsPerSecond = v.rps
	}
	if set["random-delay"] {
		cfg.RandomDelay = config.DurationFrom(v.randomDelay)
	}
	if set["timeout"] {
		cfg.Timeout = config.DurationFrom(v.timeout)
	}
	if set["respect-robots"] {
		cfg.RespectRobotsTxt = v.respectRobots
	}
	if set["dedupe"] {
		cfg.DedupeMaxSize = v.dedupe
	}
	if set["results"] {
		cfg.ResultsDir = v.resultsDir
	}
	if set["format"] {
		cfg.OutputFormat = strings.ToLower(v.format)
	}
	if set["pg-dsn"] {
		cfg.PostgresDSN = v.pgDSN
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = v.metricsAddr
	}
	if set["v"] {
		cfg.Verbose = v.verbose
	}
}

func shutdownMetrics(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

// dumpCards prints whatever the run collected, aborted runs included.
func dumpCards(w io.Writer, enabled bool, result *models.CollectResult) {
	if !enabled || result == nil {
		return
	}
	if err := printCards(w, result.Cards); err != nil {
		slog.Error("printing results", slog.Any("error", err))
	}
}

// printCards writes cards as indented JSON. An empty set prints nothing.
func printCards(w io.Writer, cards []*models.Card) error {
	if len(cards) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(cards, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSummary(w io.Writer, result *models.CollectResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	cardsPerSec := 0.0
	if duration.Seconds() > 0 {
		cardsPerSec = float64(len(result.Cards)) / duration.Seconds()
	}

	fmt.Fprintf(w, "  Cards:         %d\n", len(result.Cards))
	fmt.Fprintf(w, "  Stop reason:   %s\n", result.StopReason)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Incomplete:    %d\n", result.IncompleteCount)
	if len(result.SkippedByReason) > 0 {
		fmt.Fprintf(w, "  Skipped:       %v\n", result.SkippedByReason)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Cards/sec:     %.2f\n", cardsPerSec)
	if outputFile != "" {
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
