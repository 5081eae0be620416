package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aluiziolira/go-scrape-olx/models"
)

// CSVWriter writes one header row and then one row per card.
type CSVWriter struct {
	file *os.File
	csv  *csv.Writer
	rows int
}

// NewCSVWriter creates filename, which must not exist yet, and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	w := &CSVWriter{file: f, csv: csv.NewWriter(f)}
	if err := w.csv.Write(models.CardFields); err != nil {
		discardFile(f)
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return w, nil
}

// Write appends cards in order. Missing values become empty cells.
func (w *CSVWriter) Write(cards []*models.Card) error {
	for _, card := range cards {
		if err := w.csv.Write(cardRecord(card)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		w.rows++
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *CSVWriter) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return w.file.Close()
}

// Discard closes and deletes the file.
func (w *CSVWriter) Discard() error {
	return discardFile(w.file)
}

// Validate fails for a header-only file.
func (w *CSVWriter) Validate() error {
	if w.rows == 0 {
		return fmt.Errorf("%s: no card rows", w.file.Name())
	}
	return nil
}

// JSONWriter writes one JSON object per line.
type JSONWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	rows int
}

// NewJSONWriter creates filename, which must not exist yet.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONWriter{file: f, buf: buf, enc: enc}, nil
}

// Write appends cards in order. Missing values are null.
func (w *JSONWriter) Write(cards []*models.Card) error {
	for _, card := range cards {
		if err := w.enc.Encode(card); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		w.rows++
	}
	return w.buf.Flush()
}

func (w *JSONWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush json: %w", err)
	}
	return w.file.Close()
}

func (w *JSONWriter) Discard() error {
	return discardFile(w.file)
}

func (w *JSONWriter) Validate() error {
	if w.rows == 0 {
		return fmt.Errorf("%s: no card rows", w.file.Name())
	}
	return nil
}

func cardRecord(card *models.Card) []string {
	return []string{
		deref(card.ID),
		deref(card.URL),
		deref(card.ImageURL),
		deref(card.Name),
		formatPrice(card.Price),
		card.CurrencyUnit,
		deref(card.State),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatPrice uses the shortest representation: 1200.5, 0, 35.
func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func discardFile(f *os.File) error {
	f.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", f.Name(), err)
	}
	return nil
}

// createFile refuses to overwrite, so two runs never share an artifact.
func createFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
