package parser

import (
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-olx/models"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		path     string
		params   url.Values
		expected string
	}{
		{
			name:     "base only",
			base:     "https://www.olx.pl",
			expected: "https://www.olx.pl",
		},
		{
			name:     "replace path",
			base:     "https://www.olx.pl/oferty/",
			path:     "/d/oferta/biurko-CID628-IDabc.html",
			expected: "https://www.olx.pl/d/oferta/biurko-CID628-IDabc.html",
		},
		{
			name:     "path without leading slash",
			base:     "https://www.olx.pl",
			path:     "d/oferta/x.html",
			expected: "https://www.olx.pl/d/oferta/x.html",
		},
		{
			name:     "path carrying query",
			base:     "https://www.olx.pl",
			path:     "/d/oferta/x.html?reason=observed_ad",
			expected: "https://www.olx.pl/d/oferta/x.html?reason=observed_ad",
		},
		{
			name:     "params are additive",
			base:     "https://www.olx.pl/oferty/?search%5Border%5D=created_at:desc",
			params:   url.Values{"page": {"2"}},
			expected: "https://www.olx.pl/oferty/?page=2&search%5Border%5D=created_at%3Adesc",
		},
		{
			name:     "params on bare base",
			base:     "http://example.test/oferty/",
			params:   url.Values{"page": {"3"}},
			expected: "http://example.test/oferty/?page=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildURL(tt.base, tt.path, tt.params)
			if got != tt.expected {
				t.Fatalf("BuildURL() = %q, want %q", got, tt.expected)
			}
			parsed, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result does not parse: %v", err)
			}
			for k, vs := range tt.params {
				if !reflect.DeepEqual(parsed.Query()[k], vs) {
					t.Fatalf("param %s = %v, want %v", k, parsed.Query()[k], vs)
				}
			}
		})
	}
}

func TestBuildURLKeepsExistingQuery(t *testing.T) {
	got := BuildURL("https://www.olx.pl/oferty/?search%5Border%5D=created_at:desc", "", url.Values{"page": {"5"}})
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Query().Get("search[order]") != "created_at:desc" {
		t.Fatalf("existing query lost: %q", got)
	}
	if parsed.Query().Get("page") != "5" {
		t.Fatalf("page param missing: %q", got)
	}
}

func TestIsAbsolute(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{input: "https://x.com/y", expected: true},
		{input: "https://img.cdn/pic.jpg", expected: true},
		{input: "//ireland.apollo.olxcdn.com/v1/files/x/image", expected: true},
		{input: "/y/z", expected: false},
		{input: "/rel/path.jpg", expected: false},
		{input: "app/static/media/no_thumbnail.svg", expected: false},
		{input: "", expected: false},
		{input: "http://[::1", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsAbsolute(tt.input); got != tt.expected {
				t.Errorf("IsAbsolute(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "thousands and decimal comma", input: "1 200,50 zł", expected: 1200.50},
		{name: "plain", input: "35 zł", expected: 35},
		{name: "non-breaking space", input: "12\u00a0000 zł", expected: 12000},
		{name: "negotiable suffix", input: "450 złdo negocjacji", expected: 450},
		{name: "free marker", input: "Za darmo", expected: 0},
		{name: "free marker padded", input: "  Za darmo ", expected: 0},
		{name: "no currency", input: "99,99", expected: 99.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input, "Za darmo", models.CurrencyUnit)
			if err != nil {
				t.Fatalf("ParsePrice(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePriceRejectsMalformed(t *testing.T) {
	for _, input := range []string{"Zamienię", "", "zł", "-5 zł", "NaN zł", "1.200,50 zł"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParsePrice(input, "Za darmo", models.CurrencyUnit); !errors.Is(err, ErrPriceFormat) {
				t.Fatalf("ParsePrice(%q) error = %v, want ErrPriceFormat", input, err)
			}
		})
	}
}

func TestMissingFields(t *testing.T) {
	complete := &models.Card{
		ID:           models.StringPtr("1"),
		URL:          models.StringPtr("https://www.olx.pl/d/oferta/a.html"),
		ImageURL:     models.StringPtr("https://img.cdn/a.jpg"),
		Name:         models.StringPtr("Desk"),
		Price:        models.FloatPtr(10),
		CurrencyUnit: models.CurrencyUnit,
		State:        models.StringPtr("Używane"),
	}

	tests := []struct {
		name     string
		card     *models.Card
		expected []string
	}{
		{name: "complete", card: complete, expected: nil},
		{
			name: "absent id and state",
			card: &models.Card{
				URL:          complete.URL,
				ImageURL:     complete.ImageURL,
				Name:         complete.Name,
				Price:        complete.Price,
				CurrencyUnit: models.CurrencyUnit,
			},
			expected: []string{"card_id", "state"},
		},
		{
			name: "free item counts as missing price",
			card: &models.Card{
				ID:           complete.ID,
				URL:          complete.URL,
				ImageURL:     complete.ImageURL,
				Name:         complete.Name,
				Price:        models.FloatPtr(0),
				CurrencyUnit: models.CurrencyUnit,
				State:        complete.State,
			},
			expected: []string{"price"},
		},
		{name: "nil card", card: nil, expected: models.CardFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MissingFields(tt.card); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("MissingFields() = %v, want %v", got, tt.expected)
			}
		})
	}
}
