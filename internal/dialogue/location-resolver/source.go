package locationresolver

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"geodialogue/internal/models"
)

//go:embed data/cities.csv
var embeddedCities string

var ErrEmptyTable = errors.New("LOCATION_TABLE_EMPTY")

// LoadEmbedded returns the compiled-in city table.
func LoadEmbedded() ([]models.LocationRecord, error) {
	return LoadCSV(strings.NewReader(embeddedCities))
}

// LoadCSVFile reads a worldcities style CSV file.
func LoadCSVFile(path string) ([]models.LocationRecord, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open location table: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV parses rows with at least city, lat, lng and country columns,
// matched by header name. city_ascii falls back to city. Rows with bad
// coordinates are skipped.
func LoadCSV(r io.Reader) ([]models.LocationRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	col := map[string]int{}
	for i, h := range headers {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"city", "lat", "lng", "country"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("location table has no %q column", required)
		}
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.LocationRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		lat, errLat := strconv.ParseFloat(field(row, "lat"), 64)
		lon, errLon := strconv.ParseFloat(field(row, "lng"), 64)
		city := field(row, "city")
		if errLat != nil || errLon != nil || city == "" {
			continue
		}
		ascii := field(row, "city_ascii")
		if ascii == "" {
			ascii = city
		}
		out = append(out, models.LocationRecord{
			Country:     field(row, "country"),
			City:        city,
			CityASCII:   ascii,
			Coordinates: models.Coordinates{Lat: lat, Lon: lon},
		})
	}
	if len(out) == 0 {
		return nil, ErrEmptyTable
	}
	return out, nil
}

// Querier is the slice of the postgres client the loader needs.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// LoadPostgres reads the location table, most populous first so that the
// first row of a country is its primary city.
func LoadPostgres(ctx context.Context, db Querier, table string) ([]models.LocationRecord, error) {
	if table == "" {
		table = "world_cities"
	}
	query := fmt.Sprintf(
		"SELECT city, city_ascii, country, lat, lng FROM %s ORDER BY population DESC NULLS LAST",
		pq.QuoteIdentifier(table),
	)
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query location table: %w", err)
	}
	defer rows.Close()

	var out []models.LocationRecord
	for rows.Next() {
		var (
			rec   models.LocationRecord
			ascii sql.NullString
		)
		if err := rows.Scan(&rec.City, &ascii, &rec.Country, &rec.Coordinates.Lat, &rec.Coordinates.Lon); err != nil {
			return nil, fmt.Errorf("scan location row: %w", err)
		}
		rec.CityASCII = rec.City
		if ascii.Valid && ascii.String != "" {
			rec.CityASCII = ascii.String
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyTable
	}
	return out, nil
}
