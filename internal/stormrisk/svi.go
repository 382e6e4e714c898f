package stormrisk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SVIRecord is one county of the CDC social vulnerability index. Scored is
// false when the county has no ranking (the CSV uses -999).
type SVIRecord struct {
	FIPS      string
	County    string
	StateName string
	StateAbbr string
	SVI       float64
	Scored    bool
}

// SVITable indexes SVI records by 5-digit FIPS.
type SVITable map[string]SVIRecord

// Score returns the county's SVI, 0 when unknown or unscored.
func (t SVITable) Score(fips string) float64 {
	if r, ok := t[fips]; ok && r.Scored {
		return r.SVI
	}
	return 0
}

// FIPS returns the table keys in sorted order.
func (t SVITable) FIPS() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadSVI reads the SVI CSV at path. A blank path or a missing file yields an
// empty table, since the index is optional.
func LoadSVI(path string) (SVITable, error) {
	if path == "" {
		return SVITable{}, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("stormrisk: SVI file %s not found, continuing without it", path)
		return SVITable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open svi: %w", err)
	}
	defer f.Close()
	return ReadSVI(f)
}

// ReadSVI parses SVI rows by header name; FIPS and RPL_THEMES are required.
func ReadSVI(r io.Reader) (SVITable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read svi header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{"FIPS", "RPL_THEMES"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("svi: missing column %s", req)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	table := SVITable{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse svi: %w", err)
		}
		fips := zfill(get(rec, "FIPS"), 5)
		if fips == "00000" {
			continue
		}
		rec2 := SVIRecord{
			FIPS:      fips,
			County:    get(rec, "COUNTY"),
			StateName: get(rec, "STATE"),
			StateAbbr: get(rec, "ST_ABBR"),
		}
		if v, err := strconv.ParseFloat(get(rec, "RPL_THEMES"), 64); err == nil && v >= 0 {
			rec2.SVI = round4(v)
			rec2.Scored = true
		}
		table[fips] = rec2
	}
	return table, nil
}
