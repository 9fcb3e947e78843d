// Package importer loads property records into the store from CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

// Import reads CSV rows of the form pin,address[,latitude,longitude] and
// upserts each into the store. A header row starting with "pin" is skipped.
// Returns the number of imported records.
func Import(ctx context.Context, store lotbot.PropertyStore, r io.Reader, logger *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	count := 0
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read csv: %w", err)
		}
		line++

		if line == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "pin") {
			continue
		}
		if len(record) < 2 {
			return count, fmt.Errorf("line %d: expected at least pin and address", line)
		}

		p := lotbot.Property{
			PIN:     strings.TrimSpace(record[0]),
			Address: strings.TrimSpace(record[1]),
		}
		if p.PIN == "" || p.Address == "" {
			return count, fmt.Errorf("line %d: pin and address must be non-empty", line)
		}
		if len(record) >= 4 && record[2] != "" && record[3] != "" {
			lat, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
			if err != nil {
				return count, fmt.Errorf("line %d: parse latitude: %w", line, err)
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
			if err != nil {
				return count, fmt.Errorf("line %d: parse longitude: %w", line, err)
			}
			p.Coordinates = &lotbot.Coordinates{Latitude: lat, Longitude: lon}
		}

		if err := store.AddProperty(ctx, p); err != nil {
			return count, err
		}
		count++
	}

	logger.Info("imported properties", zap.Int("count", count))
	return count, nil
}

// ImportFile opens path and imports its rows.
func ImportFile(ctx context.Context, store lotbot.PropertyStore, path string, logger *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	return Import(ctx, store, f, logger)
}
