package pipeline

import (
	"errors"

	"github.com/aluiziolira/go-scrape-olx/models"
)

// MultiWriter fans every call out to several writers. Write stops at the first
// failure; Close, Discard and Validate visit every writer and join the errors.
type MultiWriter []OutputWriter

// NewDualWriter writes the same cards as CSV and as JSON Lines.
func NewDualWriter(csvFilename, jsonFilename string) (MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Discard()
		return nil, err
	}
	return MultiWriter{csvWriter, jsonWriter}, nil
}

func (m MultiWriter) Write(cards []*models.Card) error {
	for _, w := range m {
		if err := w.Write(cards); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Validate() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Validate())
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Discard() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Discard())
	}
	return errors.Join(errs...)
}
