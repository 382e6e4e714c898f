package stormrisk

import (
	"fmt"
	"sort"
	"strings"
)

// FeatureSet selects which event columns the classifier sees.
type FeatureSet string

const (
	// FeaturesFull includes outcome columns (damage, injuries, deaths).
	FeaturesFull FeatureSet = "full"
	// FeaturesExAnte keeps only what is known before the event lands.
	FeaturesExAnte FeatureSet = "ex_ante"
	// FeaturesLeakageFree also drops the event type one-hot.
	FeaturesLeakageFree FeatureSet = "leakage_free"
)

// DefaultFeatureSet is used when config leaves the feature set blank.
const DefaultFeatureSet = FeaturesExAnte

// ParseFeatureSet accepts a config value; "" maps to DefaultFeatureSet.
func ParseFeatureSet(s string) (FeatureSet, error) {
	switch FeatureSet(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultFeatureSet, nil
	case FeaturesFull:
		return FeaturesFull, nil
	case FeaturesExAnte:
		return FeaturesExAnte, nil
	case FeaturesLeakageFree:
		return FeaturesLeakageFree, nil
	}
	return "", fmt.Errorf("unknown feature set %q", s)
}

// OutageEventTypes are the event types that can cause a power outage.
var OutageEventTypes = map[string]bool{
	"Thunderstorm Wind": true,
	"High Wind":         true,
	"Hurricane":         true,
	"Tornado":           true,
	"Ice Storm":         true,
	"Winter Storm":      true,
	"Heavy Snow":        true,
	"Blizzard":          true,
	"Tropical Storm":    true,
	"Flood":             true,
	"Flash Flood":       true,
	"Coastal Flood":     true,
}

// OutageLikely reports whether an event is labelled power_outage_likely.
func OutageLikely(e Event) bool {
	if !OutageEventTypes[e.EventType] {
		return false
	}
	return e.DamageProperty >= 1e6 || e.Injuries > 0 || e.Deaths > 0
}

// Label returns the event label as 0 or 1.
func Label(e Event) float64 {
	if OutageLikely(e) {
		return 1
	}
	return 0
}

const eventPrefix = "event_"

// Dataset is a design matrix built from storm events.
type Dataset struct {
	Columns []string
	X       [][]float64
	Y       []float64
	Events  []Event
}

// Columns returns the feature names for a feature set given the event types
// present. Event columns are sorted.
func Columns(fs FeatureSet, eventTypes []string) []string {
	var cols []string
	if fs == FeaturesFull {
		cols = append(cols, "damage_property", "damage_crops", "injuries", "deaths")
	}
	cols = append(cols, "magnitude", "begin_lat", "begin_lon", "svi")
	if fs == FeaturesLeakageFree {
		return cols
	}
	types := append([]string(nil), eventTypes...)
	sort.Strings(types)
	for _, t := range types {
		cols = append(cols, eventPrefix+t)
	}
	return cols
}

// EventTypes returns the distinct event types in sorted order.
func EventTypes(events []Event) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range events {
		if e.EventType == "" || seen[e.EventType] {
			continue
		}
		seen[e.EventType] = true
		out = append(out, e.EventType)
	}
	sort.Strings(out)
	return out
}

// Prepare builds the labelled design matrix for events under fs.
func Prepare(events []Event, svi SVITable, fs FeatureSet) *Dataset {
	cols := Columns(fs, EventTypes(events))
	ds := &Dataset{
		Columns: cols,
		X:       make([][]float64, len(events)),
		Y:       make([]float64, len(events)),
		Events:  events,
	}
	for i, e := range events {
		ds.X[i] = FeatureRow(cols, e, svi)
		ds.Y[i] = Label(e)
	}
	return ds
}

// FeatureRow encodes one event against a fixed column list. Unknown event
// types encode as all zeros, so a stored model can score new data.
func FeatureRow(cols []string, e Event, svi SVITable) []float64 {
	row := make([]float64, len(cols))
	for j, c := range cols {
		switch c {
		case "damage_property":
			row[j] = e.DamageProperty
		case "damage_crops":
			row[j] = e.DamageCrops
		case "injuries":
			row[j] = e.Injuries
		case "deaths":
			row[j] = e.Deaths
		case "magnitude":
			row[j] = e.Magnitude
		case "begin_lat":
			row[j] = e.BeginLat
		case "begin_lon":
			row[j] = e.BeginLon
		case "svi":
			row[j] = svi.Score(e.FIPS)
		default:
			if t, ok := strings.CutPrefix(c, eventPrefix); ok && t == e.EventType {
				row[j] = 1
			}
		}
	}
	return row
}
