package parser

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-olx/models"
)

// ErrPriceFormat is returned when price text is not a number after normalisation.
var ErrPriceFormat = errors.New("unexpected price format")

var priceSpaces = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// BuildURL composes a request URL from base. A non-empty path replaces the path
// component; params are added to whatever query base already carries.
func BuildURL(base, path string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	query := url.Values{}
	if path != "" {
		ref, err := url.Parse(path)
		if err != nil {
			u.Path = ensureLeadingSlash(path)
			u.RawPath = ""
		} else {
			u.Path = ensureLeadingSlash(ref.Path)
			u.RawPath = ref.RawPath
			u.Fragment = ref.Fragment
			for k, vs := range ref.Query() {
				query[k] = append(query[k], vs...)
			}
		}
	}
	for k, vs := range params {
		query[k] = append(query[k], vs...)
	}

	if len(query) > 0 {
		merged := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u.String()
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// IsAbsolute reports whether candidate parses as a URL with a host.
func IsAbsolute(candidate string) bool {
	u, err := url.Parse(strings.TrimSpace(candidate))
	if err != nil {
		return false
	}
	return u.Host != ""
}

// ParsePrice converts listing price text such as "1 200,50 zł" to a number.
// Text equal to freeMarker is a price of zero.
func ParsePrice(text, freeMarker, currency string) (float64, error) {
	text = strings.TrimSpace(text)
	if freeMarker != "" && text == freeMarker {
		return 0, nil
	}

	cleaned := priceSpaces.Replace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if currency != "" {
		if idx := strings.Index(cleaned, currency); idx >= 0 {
			cleaned = cleaned[:idx]
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, text)
	}
	return value, nil
}

// MissingFields lists the card fields that are absent or empty, in output order.
// A price of zero is reported too, so free items always show up here.
func MissingFields(c *models.Card) []string {
	if c == nil {
		return append([]string(nil), models.CardFields...)
	}

	var missing []string
	check := func(name string, empty bool) {
		if empty {
			missing = append(missing, name)
		}
	}
	check("card_id", emptyString(c.ID))
	check("card_url", emptyString(c.URL))
	check("img_url", emptyString(c.ImageURL))
	check("name", emptyString(c.Name))
	check("price", c.Price == nil || *c.Price == 0)
	check("currency_unit", c.CurrencyUnit == "")
	check("state", emptyString(c.State))
	return missing
}

func emptyString(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
