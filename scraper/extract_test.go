package scraper

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/aluiziolira/go-scrape-olx/parser"
)

type cardFixture struct {
	id          string
	href        string
	img         string
	name        string
	price       string
	state       string
	noContainer bool
	emptyImg    bool
}

func cardHTML(c cardFixture) string {
	var b strings.Builder
	if c.id != "" {
		fmt.Fprintf(&b, `<div class="css-1sw7q4x" id="%s">`, c.id)
	} else {
		b.WriteString(`<div class="css-1sw7q4x">`)
	}
	if c.href != "" {
		fmt.Fprintf(&b, `<a href="%s">`, c.href)
	}
	if c.img != "" || c.emptyImg {
		fmt.Fprintf(&b, `<img src="%s" alt="photo"/>`, c.img)
	}
	if c.href != "" {
		b.WriteString(`</a>`)
	}
	if !c.noContainer {
		b.WriteString(`<div class="css-u2ayx9">`)
		if c.name != "" {
			fmt.Fprintf(&b, `<h6 class="css-16v5mdi er34gjf0">%s</h6>`, c.name)
		}
		if c.price != "" {
			fmt.Fprintf(&b, `<p class="css-10b0gli er34gjf0">%s</p>`, c.price)
		}
		b.WriteString(`</div>`)
	}
	if c.state != "" {
		fmt.Fprintf(&b, `<span class="css-3lkihg">%s</span>`, c.state)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func pageHTML(cards ...cardFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><div data-testid="listing-grid">`)
	for _, c := range cards {
		b.WriteString(cardHTML(c))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func goodCard(id string) cardFixture {
	return cardFixture{
		id:    id,
		href:  "/d/oferta/item-" + id + ".html",
		img:   "https://img.cdn/" + id + ".jpg",
		name:  "Item " + id,
		price: "100 zł",
		state: "Używane",
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.ListingURL = "http://example.test/oferty/"
	cfg.GoodsCount = 10
	return cfg
}

func newTestCollector(t *testing.T, cfg *config.Config, fetcher Fetcher) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, fetcher)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c
}

func firstCard(t *testing.T, in cardFixture) parser.Node {
	t.Helper()
	doc, err := parser.Parse(strings.NewReader(pageHTML(in)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nodes := doc.FindAll("div", "css-1sw7q4x")
	if len(nodes) != 1 {
		t.Fatalf("cards = %d, want 1", len(nodes))
	}
	return nodes[0]
}

func TestExtractCardFull(t *testing.T) {
	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	node := firstCard(t, cardFixture{
		id:    "851",
		href:  "/d/oferta/biurko-CID628-ID851.html",
		img:   "https://img.cdn/pic.jpg",
		name:  " Desk ",
		price: "1 200,50 zł",
		state: "Używane",
	})

	card, reason, err := c.extractCard(node)
	if err != nil || card == nil {
		t.Fatalf("extract: card=%v reason=%q err=%v", card, reason, err)
	}
	if *card.ID != "851" {
		t.Errorf("id = %q", *card.ID)
	}
	if *card.URL != "http://example.test/d/oferta/biurko-CID628-ID851.html" {
		t.Errorf("url = %q", *card.URL)
	}
	if *card.ImageURL != "https://img.cdn/pic.jpg" {
		t.Errorf("img = %q", *card.ImageURL)
	}
	if *card.Name != "Desk" {
		t.Errorf("name = %q", *card.Name)
	}
	if *card.Price != 1200.50 {
		t.Errorf("price = %v, want 1200.50", *card.Price)
	}
	if card.CurrencyUnit != "zł" {
		t.Errorf("currency = %q", card.CurrencyUnit)
	}
	if *card.State != "Używane" {
		t.Errorf("state = %q", *card.State)
	}
}

func TestExtractCardSkips(t *testing.T) {
	tests := []struct {
		name   string
		in     cardFixture
		reason string
	}{
		{
			name:   "relative image",
			in:     cardFixture{id: "1", href: "/d/a.html", img: "/rel/path.jpg", name: "A", price: "5 zł"},
			reason: skipRelativeImage,
		},
		{
			name:   "empty image source",
			in:     cardFixture{id: "5", href: "/d/e.html", emptyImg: true, name: "E", price: "5 zł"},
			reason: skipRelativeImage,
		},
		{
			name:   "missing name and price container",
			in:     cardFixture{id: "2", href: "/d/b.html", img: "https://img.cdn/b.jpg", noContainer: true},
			reason: skipMissingContainer,
		},
		{
			name:   "unreadable price",
			in:     cardFixture{id: "3", href: "/d/c.html", name: "C", price: "Zamienię"},
			reason: skipBadPrice,
		},
	}

	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, reason, err := c.extractCard(firstCard(t, tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if card != nil {
				t.Fatalf("expected card to be dropped, got %+v", card)
			}
			if reason != tt.reason {
				t.Fatalf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestExtractCardFreeMarker(t *testing.T) {
	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	card, _, err := c.extractCard(firstCard(t, cardFixture{id: "9", name: "Kanapa", price: "Za darmo"}))
	if err != nil || card == nil {
		t.Fatalf("extract: %v", err)
	}
	if card.Price == nil || *card.Price != 0 {
		t.Fatalf("free item price = %v, want 0", card.Price)
	}
}

func TestExtractCardMissingOptionalFields(t *testing.T) {
	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	card, reason, err := c.extractCard(firstCard(t, cardFixture{}))
	if err != nil || card == nil {
		t.Fatalf("extract: card=%v reason=%q err=%v", card, reason, err)
	}
	if card.ID != nil || card.URL != nil || card.ImageURL != nil || card.Name != nil || card.Price != nil || card.State != nil {
		t.Fatalf("absent nodes should give nil fields: %+v", card)
	}
	if card.CurrencyUnit != "zł" {
		t.Fatalf("currency always set, got %q", card.CurrencyUnit)
	}
}

func TestExtractCardAbsoluteAndProtocolRelativeLinks(t *testing.T) {
	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	card, _, err := c.extractCard(firstCard(t, cardFixture{
		href: "https://www.otodom.pl/pl/oferta/x",
		img:  "//img.cdn/pic.jpg",
		name: "Mieszkanie",
	}))
	if err != nil || card == nil {
		t.Fatalf("extract: %v", err)
	}
	if *card.URL != "https://www.otodom.pl/pl/oferta/x" {
		t.Errorf("absolute url should be kept, got %q", *card.URL)
	}
	if *card.ImageURL != "http://img.cdn/pic.jpg" {
		t.Errorf("img = %q, want base scheme added", *card.ImageURL)
	}
}

func TestExtractCardImageWithoutSource(t *testing.T) {
	c := newTestCollector(t, testConfig(), &fakeFetcher{})
	doc, err := parser.Parse(strings.NewReader(
		`<div class="css-1sw7q4x" id="6"><img alt="photo"/><div class="css-u2ayx9"><h6 class="css-16v5mdi er34gjf0">F</h6></div></div>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nodes := doc.FindAll("div", "css-1sw7q4x")
	if len(nodes) != 1 {
		t.Fatalf("cards = %d, want 1", len(nodes))
	}

	card, reason, err := c.extractCard(nodes[0])
	if err != nil || card == nil {
		t.Fatalf("img without src should keep the card: reason=%q err=%v", reason, err)
	}
	if card.ImageURL != nil {
		t.Fatalf("img_url = %q, want nil", *card.ImageURL)
	}
}

func TestExtractCardPriceAbortPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.PriceErrorPolicy = config.PriceErrorsAbort
	c := newTestCollector(t, cfg, &fakeFetcher{})

	_, _, err := c.extractCard(firstCard(t, cardFixture{id: "4", name: "D", price: "Zamienię"}))
	if !errors.Is(err, parser.ErrPriceFormat) {
		t.Fatalf("expected ErrPriceFormat, got %v", err)
	}
}
