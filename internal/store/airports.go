package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/flightbase/logbook/internal/dbx"
	"github.com/flightbase/logbook/internal/types"
)

// searchCap bounds airport search results regardless of caller limit.
const searchCap = 25

const airportColumns = `id, icao_code, iata_code, name, city, country,
	latitude, longitude, timezone, elevation_ft, type, active`

// GetAirport retrieves one airport by ICAO code.
func (s *Store) GetAirport(ctx context.Context, icao string) (*types.Airport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+airportColumns+` FROM airports WHERE icao_code = ?
	`, strings.ToUpper(strings.TrimSpace(icao)))

	airport, err := scanAirport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan airport: %w", err)
	}
	return airport, nil
}

// SearchAirports matches the query case-insensitively against code,
// name and city of active airports. Exact code matches rank before
// prefix matches before substring matches.
func (s *Store) SearchAirports(ctx context.Context, query string, limit int) ([]types.Airport, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 || limit > searchCap {
		limit = searchCap
	}

	code := strings.ToUpper(q)
	prefix := escapeLike(q) + "%"
	substring := "%" + escapeLike(q) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+airportColumns+` FROM airports
		WHERE active = 1
		  AND (icao_code LIKE ? ESCAPE '\'
		       OR iata_code LIKE ? ESCAPE '\'
		       OR name LIKE ? ESCAPE '\'
		       OR city LIKE ? ESCAPE '\')
		ORDER BY
			CASE
				WHEN icao_code = ? OR iata_code = ? THEN 0
				WHEN icao_code LIKE ? ESCAPE '\' OR iata_code LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\' THEN 1
				ELSE 2
			END,
			icao_code ASC
		LIMIT ?
	`, substring, substring, substring, substring,
		code, code,
		prefix, prefix, prefix,
		limit)
	if err != nil {
		return nil, fmt.Errorf("search airports: %w", err)
	}
	defer rows.Close()

	var airports []types.Airport
	for rows.Next() {
		airport, err := scanAirport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan airport: %w", err)
		}
		airports = append(airports, *airport)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate airports: %w", err)
	}
	return airports, nil
}

// BulkInsertAirports seeds reference data inside one transaction.
// Existing ICAO codes are left untouched, never overwritten. Returns
// the number of rows actually inserted.
func (s *Store) BulkInsertAirports(ctx context.Context, airports []types.Airport) (int, error) {
	if len(airports) == 0 {
		return 0, nil
	}

	inserted := 0
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, a := range airports {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO airports
					(icao_code, iata_code, name, city, country, latitude, longitude,
					 timezone, elevation_ft, type, active)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, strings.ToUpper(a.ICAO), a.IATA, a.Name, a.City, a.Country,
				a.Latitude, a.Longitude, a.Timezone, a.ElevationFt, a.Type,
				boolToInt(a.Active))
			if err != nil {
				return fmt.Errorf("insert airport %s: %w", a.ICAO, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// CountAirports returns the number of seeded airports.
func (s *Store) CountAirports(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count airports: %w", err)
	}
	return count, nil
}

func scanAirport(scanner interface{ Scan(...any) error }) (*types.Airport, error) {
	var a types.Airport
	var iata, timezone sql.NullString
	var elevation sql.NullInt64
	var active int

	err := scanner.Scan(
		&a.ID,
		&a.ICAO,
		&iata,
		&a.Name,
		&a.City,
		&a.Country,
		&a.Latitude,
		&a.Longitude,
		&timezone,
		&elevation,
		&a.Type,
		&active,
	)
	if err != nil {
		return nil, err
	}

	if iata.Valid {
		a.IATA = &iata.String
	}
	if timezone.Valid {
		a.Timezone = &timezone.String
	}
	if elevation.Valid {
		ft := int(elevation.Int64)
		a.ElevationFt = &ft
	}
	a.Active = active != 0

	return &a, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
