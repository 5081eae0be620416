package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/aluiziolira/go-scrape-olx/models"
	"github.com/aluiziolira/go-scrape-olx/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const bodyExcerptLimit = 512

// Collector walks the listing page by page until GoodsCount cards are collected.
// It is single use: Run accumulates into the collector's own result set.
type Collector struct {
	cfg     *config.Config
	fetcher Fetcher
	Metrics *Metrics

	baseScheme string
	seen       *lru.Cache[string, struct{}]

	cards      []*models.Card
	page       int
	requests   int
	incomplete int
	skipped    map[string]int
}

// NewCollector builds a collector. A nil fetcher means the default colly fetcher.
func NewCollector(cfg *config.Config, fetcher Fetcher) (*Collector, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	metrics := NewMetrics()
	if fetcher == nil {
		fetcher, err = NewCollyFetcher(cfg, metrics)
		if err != nil {
			return nil, err
		}
	}

	c := &Collector{
		cfg:        cfg,
		fetcher:    fetcher,
		Metrics:    metrics,
		baseScheme: base.Scheme,
		skipped:    make(map[string]int),
	}
	if cfg.DedupeMaxSize > 0 {
		c.seen, err = lru.New[string, struct{}](cfg.DedupeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("create dedupe cache: %w", err)
		}
	}
	return c, nil
}

// Run collects cards until the target is met. Any returned error means the run
// was aborted and its partial result must not be written.
func (c *Collector) Run(ctx context.Context) (*models.CollectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	for len(c.cards) < c.cfg.GoodsCount {
		if err := ctx.Err(); err != nil {
			return c.result(start, models.StateAborted, "cancelled"), err
		}
		if c.cfg.MaxPages > 0 && c.page >= c.cfg.MaxPages {
			slog.Warn("page limit reached before target",
				slog.Int("pages", c.page),
				slog.Int("collected", len(c.cards)),
				slog.Int("target", c.cfg.GoodsCount),
			)
			return c.result(start, models.StateDone, "page_limit"), nil
		}

		c.page++
		pageURL := c.pageURL(c.page)
		page, err := c.fetcher.Fetch(ctx, pageURL)
		c.requests++
		if err != nil {
			if ctx.Err() != nil {
				return c.result(start, models.StateAborted, "cancelled"), ctx.Err()
			}
			classified := classifyError(err, 0)
			category := errorTypeLabel(classified)
			c.Metrics.IncError(category)
			slog.Error("can't get response from url",
				slog.String("url", pageURL),
				slog.String("category", category),
				slog.Any("error", err),
			)
			return c.result(start, models.StateAborted, category), fmt.Errorf("fetch page %d: %w", c.page, classified)
		}
		if page.StatusCode != http.StatusOK {
			classified := classifyError(nil, page.StatusCode)
			category := errorTypeLabel(classified)
			c.Metrics.IncError(category)
			slog.Error("can't get response from url",
				slog.String("url", pageURL),
				slog.Int("status", page.StatusCode),
				slog.String("body", excerpt(page.Body)),
			)
			return c.result(start, models.StateAborted, category), fmt.Errorf("fetch page %d: %w", c.page, classified)
		}
		c.Metrics.IncPages()

		doc, err := parser.ParseBytes(page.Body)
		if err != nil {
			c.Metrics.IncError("parse")
			slog.Error("can't parse page", slog.String("url", pageURL), slog.Any("error", err))
			return c.result(start, models.StateAborted, "parse"), fmt.Errorf("page %d: %w", c.page, err)
		}

		nodes := doc.FindAll(c.cfg.Selectors.CardTag, c.cfg.Selectors.CardClass)
		if len(nodes) == 0 {
			if c.cfg.EmptyPageEndsRun && c.page > 1 {
				slog.Info("no cards on page, treating it as the end of results",
					slog.Int("page", c.page),
					slog.Int("collected", len(c.cards)),
				)
				return c.result(start, models.StateDone, "end_of_results"), nil
			}
			c.Metrics.IncError("no_cards")
			slog.Error("can't find any cards", slog.String("url", pageURL), slog.Int("page", c.page))
			return c.result(start, models.StateAborted, "no_cards"), fmt.Errorf("page %d: %w", c.page, ErrNoCards)
		}

		if err := c.collectPage(nodes); err != nil {
			c.Metrics.IncError("price")
			slog.Error("card extraction failed", slog.Int("page", c.page), slog.Any("error", err))
			return c.result(start, models.StateAborted, "price"), err
		}
	}

	return c.result(start, models.StateDone, "target_reached"), nil
}

// Cards returns the collected cards in encounter order.
func (c *Collector) Cards() []*models.Card {
	out := make([]*models.Card, len(c.cards))
	copy(out, c.cards)
	return out
}

func (c *Collector) collectPage(nodes []parser.Node) error {
	for _, node := range nodes {
		if len(c.cards) >= c.cfg.GoodsCount {
			break
		}

		card, reason, err := c.extractCard(node)
		if err != nil {
			return err
		}
		if card == nil {
			c.skip(reason)
			continue
		}
		if c.seen != nil {
			if key := card.Key(); key != "" {
				if c.seen.Contains(key) {
					c.skip(skipDuplicate)
					continue
				}
				c.seen.Add(key, struct{}{})
			}
		}

		c.checkCompleteness(card)
		c.cards = append(c.cards, card)
		c.Metrics.IncCards()
		slog.Info("amount collected data",
			slog.Int("collected", len(c.cards)),
			slog.Int("page", c.page),
		)
	}
	return nil
}

func (c *Collector) checkCompleteness(card *models.Card) {
	missing := parser.MissingFields(card)
	if len(missing) == 0 {
		return
	}
	c.incomplete++
	c.Metrics.IncIncomplete()
	slog.Warn("not all data received",
		slog.String("card", card.Key()),
		slog.Any("missing", missing),
	)
}

func (c *Collector) skip(reason string) {
	c.skipped[reason]++
	c.Metrics.IncSkipped(reason)
	slog.Debug("card skipped", slog.String("reason", reason), slog.Int("page", c.page))
}

func (c *Collector) pageURL(page int) string {
	if page <= 1 {
		return c.cfg.ListingURL
	}
	params := url.Values{c.cfg.Selectors.PageParameter: {strconv.Itoa(page)}}
	return parser.BuildURL(c.cfg.ListingURL, "", params)
}

func (c *Collector) result(start time.Time, state models.RunState, reason string) *models.CollectResult {
	skipped := make(map[string]int, len(c.skipped))
	for k, v := range c.skipped {
		skipped[k] = v
	}
	return &models.CollectResult{
		Cards:           c.Cards(),
		State:           state,
		StopReason:      reason,
		StartTime:       start,
		EndTime:         time.Now(),
		PageCount:       c.page,
		RequestCount:    c.requests,
		IncompleteCount: c.incomplete,
		SkippedByReason: skipped,
	}
}

func excerpt(body []byte) string {
	if len(body) <= bodyExcerptLimit {
		return string(body)
	}
	return string(body[:bodyExcerptLimit]) + "..."
}

// classifyError maps a transport error or a non-200 status to a *FetchError.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &FetchError{Category: CategoryTimeout, Err: err}
	case errors.As(err, &opErr):
		return &FetchError{Category: CategoryConnection, Err: err}
	case err != nil:
		return &FetchError{Category: CategoryOther, Err: err}
	}

	category := CategoryBadStatus
	switch statusCode {
	case http.StatusForbidden:
		category = CategoryForbidden
	case http.StatusNotFound:
		category = CategoryNotFound
	case http.StatusTooManyRequests:
		category = CategoryRateLimited
	}
	return &FetchError{Category: category, StatusCode: statusCode}
}
