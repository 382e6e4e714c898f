package stormrisk

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var ErrNoEvents = errors.New("no storm event files found")

// Event is one row of an NCEI StormEvents details file.
type Event struct {
	Year           int
	State          string
	FIPS           string
	CountyName     string
	EventType      string
	DamageProperty float64
	DamageCrops    float64
	Injuries       float64
	Deaths         float64
	Magnitude      float64
	BeginLat       float64
	BeginLon       float64
}

// EventFiles returns the files matching pattern in sorted order.
func EventFiles(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadEvents reads and concatenates every details file, transparently
// decompressing .gz files.
func LoadEvents(paths []string) ([]Event, error) {
	if len(paths) == 0 {
		return nil, ErrNoEvents
	}
	var all []Event
	for _, p := range paths {
		events, err := loadEventFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

func loadEventFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	events, err := ReadEvents(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return events, nil
}

// ReadEvents parses a details CSV by header name. STATE_FIPS, CZ_FIPS and
// EVENT_TYPE are required.
func ReadEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{"STATE_FIPS", "CZ_FIPS", "EVENT_TYPE"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("missing column %s", req)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var events []Event
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse row %d: %w", len(events)+2, err)
		}

		e := Event{
			State:          get(rec, "STATE"),
			FIPS:           countyFIPS(get(rec, "STATE_FIPS"), get(rec, "CZ_FIPS")),
			CountyName:     get(rec, "CZ_NAME"),
			EventType:      get(rec, "EVENT_TYPE"),
			DamageProperty: ParseDamage(get(rec, "DAMAGE_PROPERTY")),
			DamageCrops:    ParseDamage(get(rec, "DAMAGE_CROPS")),
			Injuries:       number(get(rec, "INJURIES_DIRECT")) + number(get(rec, "INJURIES_INDIRECT")),
			Deaths:         number(get(rec, "DEATHS_DIRECT")) + number(get(rec, "DEATHS_INDIRECT")),
			Magnitude:      number(get(rec, "MAGNITUDE")),
			BeginLat:       number(get(rec, "BEGIN_LAT")),
			BeginLon:       number(get(rec, "BEGIN_LON")),
		}
		if y, err := strconv.Atoi(get(rec, "YEAR")); err == nil {
			e.Year = y
		} else if ym, err := strconv.Atoi(get(rec, "BEGIN_YEARMONTH")); err == nil {
			e.Year = ym / 100
		}
		events = append(events, e)
	}
	return events, nil
}

// number parses a numeric cell; blanks and junk are 0.
func number(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// countyFIPS joins a state and county code into a 5-digit FIPS key.
func countyFIPS(state, county string) string {
	return zfill(state, 2) + zfill(county, 3)
}

func zfill(s string, width int) string {
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == math.Trunc(v) && v >= 0 {
		s = strconv.FormatInt(int64(v), 10)
	}
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
