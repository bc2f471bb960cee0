package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"meteorite-explorer/internal/meteorite"
)

// maxRowErrors caps the row errors kept in a Report.
const maxRowErrors = 50

// Report summarizes one parse or import.
type Report struct {
	Origin   string
	Rows     int
	Imported int
	Skipped  int
	// Errors aggregates the first rejected rows; nil when none were rejected.
	Errors *multierror.Error
}

// Err returns the aggregated row errors or nil.
func (r Report) Err() error {
	return r.Errors.ErrorOrNil()
}

func (r *Report) reject(line int, err error) {
	r.Skipped++
	if r.Errors == nil || len(r.Errors.Errors) < maxRowErrors {
		r.Errors = multierror.Append(r.Errors, fmt.Errorf("line %d: %w", line, err))
	}
}

var (
	errMissingID = errors.New("missing id")
	errBadID     = errors.New("id is not an integer")
)

type columnIndex struct {
	name, id, recclass, mass, fall, year, reclat, reclong int
}

// nasaLayout is the column order of the published NASA landings file.
var nasaLayout = columnIndex{name: 0, id: 1, recclass: 3, mass: 4, fall: 5, year: 6, reclat: 7, reclong: 8}

var headerAliases = map[string]string{
	"name":     "name",
	"id":       "id",
	"recclass": "recclass",
	"mass (g)": "mass",
	"mass":     "mass",
	"fall":     "fall",
	"year":     "year",
	"reclat":   "reclat",
	"reclong":  "reclong",
}

// columnsFromHeader locates columns by name. Without an "id" column the
// header is not recognized and the NASA layout applies.
func columnsFromHeader(header []string) columnIndex {
	found := make(map[string]int)
	for i, raw := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		if alias, ok := headerAliases[key]; ok {
			if _, dup := found[alias]; !dup {
				found[alias] = i
			}
		}
	}
	if _, ok := found["id"]; !ok {
		return nasaLayout
	}
	pick := func(key string) int {
		if i, ok := found[key]; ok {
			return i
		}
		return -1
	}
	return columnIndex{
		name:     pick("name"),
		id:       pick("id"),
		recclass: pick("recclass"),
		mass:     pick("mass"),
		fall:     pick("fall"),
		year:     pick("year"),
		reclat:   pick("reclat"),
		reclong:  pick("reclong"),
	}
}

// Parse reads a landings CSV. The first row is a header. Rows without a
// usable id are skipped and reported; malformed numbers become unknown
// values. The returned error is reserved for unreadable input.
func Parse(r io.Reader) ([]meteorite.Meteorite, Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var report Report
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, nil
	}
	if err != nil {
		return nil, report, fmt.Errorf("read header: %w", err)
	}
	cols := columnsFromHeader(header)

	var records []meteorite.Meteorite
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			report.Rows++
			report.reject(parseErr.Line, parseErr.Err)
			continue
		}
		if err != nil {
			return records, report, fmt.Errorf("read csv: %w", err)
		}
		report.Rows++
		line, _ := reader.FieldPos(0)

		record, err := parseRow(row, cols)
		if err != nil {
			report.reject(line, err)
			continue
		}
		records = append(records, record)
	}
	return records, report, nil
}

func parseRow(row []string, cols columnIndex) (meteorite.Meteorite, error) {
	rawID := cell(row, cols.id)
	if rawID == "" {
		return meteorite.Meteorite{}, errMissingID
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return meteorite.Meteorite{}, fmt.Errorf("%w: %q", errBadID, rawID)
	}
	return meteorite.Meteorite{
		ID:       id,
		Name:     cell(row, cols.name),
		RecClass: cell(row, cols.recclass),
		Fall:     cell(row, cols.fall),
		Mass:     parseFloat(cell(row, cols.mass)),
		Year:     parseYear(cell(row, cols.year)),
		RecLat:   parseFloat(cell(row, cols.reclat)),
		RecLong:  parseFloat(cell(row, cols.reclong)),
	}, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

var yearLayouts = []string{
	"01/02/2006 03:04:05 PM",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseYear accepts plain years ("1880", "1880.0") and the timestamp forms
// found in published exports of the dataset.
func parseYear(s string) *int {
	if s == "" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return &v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && math.Abs(f) <= math.MaxInt32 && f == math.Trunc(f) {
		v := int(f)
		return &v
	}
	for _, layout := range yearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v := t.Year()
			return &v
		}
	}
	return nil
}
