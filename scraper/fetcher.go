package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Page is a fetched listing page.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves one listing page. Non-200 statuses are returned as pages, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// CollyFetcher fetches pages with a synchronous colly collector.
type CollyFetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	metrics   *Metrics

	mu   sync.Mutex
	last *Page
}

// NewCollyFetcher builds a fetcher restricted to the listing host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("listing url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout.Duration)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout.Duration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		RandomDelay: cfg.RandomDelay.Duration,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &CollyFetcher{
		collector: collector,
		metrics:   metrics,
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		f.metrics.IncRequest("started")
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		f.metrics.IncRequest("completed")

		body := make([]byte, len(r.Body))
		copy(body, r.Body)
		f.mu.Lock()
		f.last = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       body,
		}
		f.mu.Unlock()
	})

	return f, nil
}

// WithTransport swaps the HTTP transport, mostly for tests.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch visits rawURL and returns the response whatever its status.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()

	if err := f.collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}

	f.mu.Lock()
	page := f.last
	f.mu.Unlock()
	if page == nil {
		return nil, errors.New("no response received")
	}
	return page, nil
}
