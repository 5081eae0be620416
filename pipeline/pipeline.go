// Package pipeline persists a finished run's cards as a timestamped artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-olx/config"
	"github.com/aluiziolira/go-scrape-olx/models"
)

// ErrEmptyResult is returned when there is nothing to write; no artifact is created.
var ErrEmptyResult = errors.New("pipeline: no cards to write")

// TimestampLayout names artifacts; it sorts chronologically and is safe in file names.
const TimestampLayout = "2006-01-02T15-04-05.000000"

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(cards []*models.Card) error
	Close() error
	Validate() error
	// Discard closes the writer and deletes what it created.
	Discard() error
}

// Sink writes the final card set of a run to a new file under Dir.
type Sink struct {
	Dir    string
	Format string
	// DB, when set, receives a copy of the rows after the file is written.
	DB  *PostgresWriter
	Now func() time.Time
}

// NewSink builds a sink from the results settings in cfg.
func NewSink(cfg *config.Config) *Sink {
	return &Sink{
		Dir:    cfg.ResultsDir,
		Format: cfg.OutputFormat,
		Now:    time.Now,
	}
}

// Write persists cards in order and returns the artifact path.
func (s *Sink) Write(ctx context.Context, cards []*models.Card) (string, error) {
	if len(cards) == 0 {
		return "", ErrEmptyResult
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	runAt := now()
	stem := filepath.Join(s.Dir, runAt.Format(TimestampLayout))

	writer, path, err := createWriter(s.Format, stem)
	if err != nil {
		return "", err
	}
	if err := writeArtifact(writer, cards); err != nil {
		return "", err
	}
	slog.Info("results file has been created", slog.String("path", path), slog.Int("cards", len(cards)))

	if s.DB != nil {
		inserted, err := s.DB.Insert(ctx, runAt, cards)
		if err != nil {
			return path, fmt.Errorf("mirror to postgres: %w", err)
		}
		slog.Info("results mirrored to postgres", slog.Int("rows", inserted))
	}
	return path, nil
}

// writeArtifact writes, closes and validates; on any failure the files are removed.
func writeArtifact(w OutputWriter, cards []*models.Card) error {
	err := w.Write(cards)
	if err != nil {
		err = fmt.Errorf("write cards: %w", err)
	} else if err = w.Close(); err != nil {
		err = fmt.Errorf("close writer: %w", err)
	} else if err = w.Validate(); err != nil {
		err = fmt.Errorf("output validation: %w", err)
	}
	if err != nil {
		if discardErr := w.Discard(); discardErr != nil {
			slog.Warn("can't remove incomplete results file", slog.Any("error", discardErr))
		}
		return err
	}
	return nil
}

func createWriter(format, stem string) (OutputWriter, string, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		path := stem + ".csv"
		w, err := NewCSVWriter(path)
		return w, path, err
	case "json":
		path := stem + ".jsonl"
		w, err := NewJSONWriter(path)
		return w, path, err
	case "dual":
		path := stem + ".csv"
		w, err := NewDualWriter(path, stem+".jsonl")
		return w, path, err
	default:
		return nil, "", fmt.Errorf("unsupported format: %s", format)
	}
}
