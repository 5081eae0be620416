package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/aluiziolira/go-scrape-olx/models"
	"github.com/aluiziolira/go-scrape-olx/parser"
)

// Skip reasons reported in CollectResult.SkippedByReason and metrics.
const (
	skipRelativeImage    = "relative_image"
	skipMissingContainer = "missing_container"
	skipBadPrice         = "bad_price"
	skipDuplicate        = "duplicate"
)

// extractCard turns a card node into a Card. A nil card with a reason means the
// card is dropped; an error is only returned for a bad price under the abort policy.
func (c *Collector) extractCard(node parser.Node) (*models.Card, string, error) {
	sel := c.cfg.Selectors
	card := &models.Card{CurrencyUnit: c.cfg.Currency}

	if id, ok := node.Attr(sel.IDAttr); ok {
		card.ID = models.StringPtr(strings.TrimSpace(id))
	}

	if link, ok := node.Find("a", ""); ok {
		if href, ok := link.Attr(sel.LinkAttr); ok {
			card.URL = models.StringPtr(c.absoluteLink(href))
		}
	}

	// Promoted and placeholder cards carry relative or empty image paths.
	// Only a missing attribute leaves the image unset.
	if img, ok := node.Find("img", ""); ok {
		if src, ok := img.Attr(sel.ImageAttr); ok {
			src = strings.TrimSpace(src)
			if !parser.IsAbsolute(src) {
				return nil, skipRelativeImage, nil
			}
			card.ImageURL = models.StringPtr(c.withScheme(src))
		}
	}

	container, ok := node.Find(sel.ContainerTag, sel.ContainerClass)
	if !ok {
		return nil, skipMissingContainer, nil
	}

	if name, ok := container.Find(sel.NameTag, sel.NameClass); ok {
		card.Name = models.StringPtr(strings.TrimSpace(name.Text()))
	}

	if priceNode, ok := container.Find(sel.PriceTag, sel.PriceClass); ok {
		price, err := parser.ParsePrice(priceNode.Text(), c.cfg.FreeMarker, c.cfg.Currency)
		if err != nil {
			if c.cfg.PriceErrorPolicy == config.PriceErrorsAbort {
				return nil, "", fmt.Errorf("card %q: %w", card.Key(), err)
			}
			slog.Warn("skipping card with unreadable price",
				slog.String("card", card.Key()),
				slog.Any("error", err),
			)
			return nil, skipBadPrice, nil
		}
		card.Price = models.FloatPtr(price)
	}

	if state, ok := node.Find(sel.StateTag, sel.StateClass); ok {
		card.State = models.StringPtr(strings.TrimSpace(state.Text()))
	}

	return card, "", nil
}

func (c *Collector) absoluteLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if parser.IsAbsolute(href) {
		return c.withScheme(href)
	}
	return parser.BuildURL(c.cfg.BaseURL, href, nil)
}

// withScheme completes protocol-relative links ("//host/path") with the base scheme.
func (c *Collector) withScheme(link string) string {
	if strings.HasPrefix(link, "//") {
		return c.baseScheme + ":" + link
	}
	return link
}
