// Package outage summarizes historical grid disturbance reports (OE-417
// style CSV: date, state, customers_affected) into a 0-1 outage risk.
package outage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Incident is one reported disturbance.
type Incident struct {
	Date              time.Time `json:"date"`
	State             string    `json:"state"`
	CustomersAffected int64     `json:"customers_affected"`
}

// History is a loaded incident list.
type History struct {
	Incidents []Incident
}

// Summary is the outage contribution to blackout risk.
type Summary struct {
	State             string  `json:"state"`
	Incidents         int     `json:"incidents"`
	CustomersAffected int64   `json:"customers_affected"`
	Days              int     `json:"days"`
	Risk              float64 `json:"outage_risk"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "1/2/2006", "1/2/2006 15:04"}

// Load reads the history CSV. A blank path or missing file yields an empty
// history.
func Load(path string) (*History, error) {
	if path == "" {
		return &History{}, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("outage: history file %s not found, outage risk will be 0", path)
		return &History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open outage history: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses the CSV by header. Rows with an unparseable date are dropped.
func Read(r io.Reader) (*History, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return &History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outage header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{"date", "state"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("outage history: missing column %s", req)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	h := &History{}
	dropped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse outage history: %w", err)
		}
		date, ok := parseDate(get(rec, "date"))
		if !ok {
			dropped++
			continue
		}
		customers, _ := strconv.ParseFloat(strings.ReplaceAll(get(rec, "customers_affected"), ",", ""), 64)
		if math.IsNaN(customers) || customers < 0 {
			customers = 0
		}
		h.Incidents = append(h.Incidents, Incident{
			Date:              date,
			State:             strings.ToUpper(get(rec, "state")),
			CustomersAffected: int64(customers),
		})
	}
	if dropped > 0 {
		log.Printf("outage: dropped %d rows with unparseable dates", dropped)
	}
	return h, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Summarize counts incidents for state (all states when blank) in the days
// before now.
func (h *History) Summarize(state string, days int, now time.Time) Summary {
	if days <= 0 {
		days = 365
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	s := Summary{State: state, Days: days}
	if s.State == "" {
		s.State = "ALL"
	}

	cutoff := now.AddDate(0, 0, -days)
	for _, inc := range h.Incidents {
		if inc.Date.Before(cutoff) {
			continue
		}
		if state != "" && inc.State != state {
			continue
		}
		s.Incidents++
		s.CustomersAffected += inc.CustomersAffected
	}

	incidentScore := math.Min(float64(s.Incidents)/5, 1)
	customerScore := math.Min(float64(s.CustomersAffected)/100000, 1)
	s.Risk = math.Round((0.6*incidentScore+0.4*customerScore)*1e4) / 1e4
	return s
}

// Recent returns incidents for state in the window, newest first.
func (h *History) Recent(state string, days int, now time.Time) []Incident {
	state = strings.ToUpper(strings.TrimSpace(state))
	cutoff := now.AddDate(0, 0, -days)
	var out []Incident
	for i := len(h.Incidents) - 1; i >= 0; i-- {
		inc := h.Incidents[i]
		if inc.Date.Before(cutoff) || (state != "" && inc.State != state) {
			continue
		}
		out = append(out, inc)
	}
	return out
}
