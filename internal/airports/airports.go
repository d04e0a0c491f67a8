// Package airports loads reference airport data from CSV datasets into
// the local database. The expected format follows the common open
// airport databases: a header row, one airport per line, ICAO codes as
// the primary identifier.
package airports

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/flightbase/logbook/internal/types"
)

// ErrNoAirports reports a dataset that produced no usable rows.
var ErrNoAirports = errors.New("no usable airport rows in dataset")

// csvAirport mirrors one dataset row. Header names follow the
// OurAirports-style exports.
type csvAirport struct {
	ICAO        string  `csv:"icao_code"`
	IATA        string  `csv:"iata_code,omitempty"`
	Name        string  `csv:"name"`
	City        string  `csv:"municipality,omitempty"`
	Country     string  `csv:"iso_country,omitempty"`
	Latitude    float64 `csv:"latitude_deg"`
	Longitude   float64 `csv:"longitude_deg"`
	Timezone    string  `csv:"timezone,omitempty"`
	ElevationFt *int    `csv:"elevation_ft,omitempty"`
	Type        string  `csv:"type,omitempty"`
}

// Inserter is the slice of the persistence layer the importer writes
// through.
type Inserter interface {
	BulkInsertAirports(ctx context.Context, airports []types.Airport) (int, error)
}

// ImportResult reports what an import run did with the dataset.
type ImportResult struct {
	Parsed   int `json:"parsed"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
}

// Parse decodes an airport CSV dataset. Rows without a valid ICAO code
// or plausible coordinates are skipped, not fatal; a dataset yielding
// zero usable rows is an error.
func Parse(r io.Reader) ([]types.Airport, int, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, 0, fmt.Errorf("create csv decoder: %w", err)
	}

	var rows []csvAirport
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("decode airport csv: %w", err)
	}

	airports := make([]types.Airport, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		a, ok := normalize(row)
		if !ok {
			skipped++
			continue
		}
		airports = append(airports, a)
	}
	if len(airports) == 0 {
		return nil, skipped, ErrNoAirports
	}
	return airports, skipped, nil
}

// ImportFile parses the dataset at path and loads it through ins.
// Rows already present keep their existing data.
func ImportFile(ctx context.Context, ins Inserter, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return Import(ctx, ins, f)
}

// Import parses a dataset from r and loads it through ins.
func Import(ctx context.Context, ins Inserter, r io.Reader) (*ImportResult, error) {
	airports, skipped, err := Parse(r)
	if err != nil {
		return nil, err
	}

	inserted, err := ins.BulkInsertAirports(ctx, airports)
	if err != nil {
		return nil, fmt.Errorf("insert airports: %w", err)
	}

	slog.Info("airport dataset imported",
		"component", "airports",
		"action", "import_complete",
		"parsed", len(airports),
		"skipped", skipped,
		"inserted", inserted,
	)
	return &ImportResult{Parsed: len(airports), Skipped: skipped, Inserted: inserted}, nil
}

// normalize validates one raw row and shapes it for storage. ICAO and
// IATA codes are stored uppercase so lookups stay exact.
func normalize(row csvAirport) (types.Airport, bool) {
	icao := strings.ToUpper(strings.TrimSpace(row.ICAO))
	if !validICAO(icao) {
		return types.Airport{}, false
	}
	if row.Latitude < -90 || row.Latitude > 90 || row.Longitude < -180 || row.Longitude > 180 {
		return types.Airport{}, false
	}
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return types.Airport{}, false
	}

	a := types.Airport{
		ICAO:        icao,
		Name:        name,
		City:        strings.TrimSpace(row.City),
		Country:     strings.ToUpper(strings.TrimSpace(row.Country)),
		Latitude:    row.Latitude,
		Longitude:   row.Longitude,
		ElevationFt: row.ElevationFt,
		Type:        strings.TrimSpace(row.Type),
		Active:      row.Type != "closed",
	}
	if iata := strings.ToUpper(strings.TrimSpace(row.IATA)); len(iata) == 3 {
		a.IATA = &iata
	}
	if tz := strings.TrimSpace(row.Timezone); tz != "" {
		a.Timezone = &tz
	}
	return a, true
}

// validICAO accepts the standard four-character codes: letters and
// digits, starting with a letter.
func validICAO(code string) bool {
	if len(code) != 4 {
		return false
	}
	if code[0] < 'A' || code[0] > 'Z' {
		return false
	}
	for i := 1; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
