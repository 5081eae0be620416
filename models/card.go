// Package models defines data structures for the scraper.
package models

import "time"

// CurrencyUnit is the currency literal attached to every card.
const CurrencyUnit = "zł"

// CardFields lists the output columns in order.
var CardFields = []string{"card_id", "card_url", "img_url", "name", "price", "currency_unit", "state"}

// Card represents one listing card collected from a results page.
// A nil pointer means the value was missing on the page.
type Card struct {
	ID           *string  `csv:"card_id" json:"card_id"`
	URL          *string  `csv:"card_url" json:"card_url"`
	ImageURL     *string  `csv:"img_url" json:"img_url"`
	Name         *string  `csv:"name" json:"name"`
	Price        *float64 `csv:"price" json:"price"`
	CurrencyUnit string   `csv:"currency_unit" json:"currency_unit"`
	State        *string  `csv:"state" json:"state"`
}

// Key returns the identity used for de-duplication: the card id, else its URL.
func (c *Card) Key() string {
	if c == nil {
		return ""
	}
	if c.ID != nil && *c.ID != "" {
		return *c.ID
	}
	if c.URL != nil {
		return *c.URL
	}
	return ""
}

// RunState is the terminal state of a collection run.
type RunState string

const (
	StateCollecting RunState = "collecting"
	StateDone       RunState = "done"
	StateAborted    RunState = "aborted"
)

// CollectResult holds the overall result of a collection run.
type CollectResult struct {
	Cards           []*Card
	State           RunState
	StopReason      string
	StartTime       time.Time
	EndTime         time.Time
	PageCount       int
	RequestCount    int
	IncompleteCount int
	SkippedByReason map[string]int
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}
