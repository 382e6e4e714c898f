package telemetry

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/solixa/internal/metrics"
)

const (
	inverterSourceColumn = "SOURCE_KEY"
	inverterTimeColumn   = "DATE_TIME"
	inverterACColumn     = "AC_POWER"
	inverterDCColumn     = "DC_POWER"

	// inverterACScale corrects the unit mismatch in the inverter export layout.
	inverterACScale = 10

	unknownSource = "UNKNOWN"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// ParseTimestamp parses the timestamp layouts seen in inverter exports.
// Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumber returns NaN for blank or non-numeric cells.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Normalizer converts raw tables into canonical frames.
type Normalizer struct {
	aliases AliasTable
}

// NewNormalizer returns a normalizer using aliases, or the built-in table
// when aliases is empty.
func NewNormalizer(aliases AliasTable) *Normalizer {
	if len(aliases) == 0 {
		aliases = DefaultAliases()
	}
	return &Normalizer{aliases: aliases}
}

// Normalize converts t with the built-in alias table.
func Normalize(t *Table) (*Frame, error) {
	return NewNormalizer(nil).Normalize(t)
}

// Normalize converts t into a canonical frame. On failure it returns an empty
// frame that still carries the detected columns, plus the error.
func (n *Normalizer) Normalize(t *Table) (*Frame, error) {
	if t == nil || len(t.Rows) == 0 {
		var cols []string
		if t != nil {
			cols = t.Columns
		}
		return emptyFrame(cols), ErrEmptyInput
	}

	var (
		frame *Frame
		err   error
	)
	if t.Index(inverterSourceColumn) >= 0 && t.Index(inverterTimeColumn) >= 0 {
		frame, err = n.normalizeInverter(t)
	} else {
		frame, err = n.normalizeGeneric(t)
	}
	if err != nil {
		metrics.NormalizeRunsTotal.WithLabelValues("error").Inc()
		return emptyFrame(t.Columns), err
	}
	if len(frame.Readings) == 0 {
		metrics.NormalizeRunsTotal.WithLabelValues("empty").Inc()
		return emptyFrame(t.Columns), ErrNoValidRows
	}

	sortAndIndex(frame.Readings)
	metrics.NormalizeRunsTotal.WithLabelValues("ok").Inc()
	metrics.ReadingsNormalized.Add(float64(len(frame.Readings)))
	return frame, nil
}

func (n *Normalizer) normalizeInverter(t *Table) (*Frame, error) {
	frame := emptyFrame(t.Columns)
	frame.Inverter = true
	frame.Mapping = Mapping{
		RoleTimestamp: inverterTimeColumn,
		RoleSource:    inverterSourceColumn,
		RoleACPower:   inverterACColumn,
		RoleDCPower:   inverterDCColumn,
	}

	srcIdx := t.Index(inverterSourceColumn)
	timeIdx := t.Index(inverterTimeColumn)
	acIdx := t.Index(inverterACColumn)
	dcIdx := t.Index(inverterDCColumn)
	if acIdx < 0 {
		return nil, &MissingColumnError{Role: string(RoleACPower)}
	}
	if dcIdx < 0 {
		return nil, &MissingColumnError{Role: string(RoleDCPower)}
	}

	// Ids are assigned over every row, before timestamps are dropped.
	ids := make(map[string]int)
	keys := make([]string, len(t.Rows))
	for i := range t.Rows {
		key := t.Cell(i, srcIdx)
		if key == "" {
			key = unknownSource
			frame.flag(FlagSourceMissing)
		}
		keys[i] = key
		if _, ok := ids[key]; !ok {
			ids[key] = len(ids) + 1
		}
	}

	for i := range t.Rows {
		ts, ok := ParseTimestamp(t.Cell(i, timeIdx))
		if !ok {
			frame.flag(FlagTimestampUnparseable)
			continue
		}

		ac := parseNumber(t.Cell(i, acIdx)) * inverterACScale
		dc := parseNumber(t.Cell(i, dcIdx))
		if dc == 0 {
			dc = math.NaN()
		}
		eff, raw := efficiency(ac, dc)

		num := ids[keys[i]]
		r := Reading{
			Timestamp:      ts,
			SourceID:       "S" + strconv.Itoa(num),
			SourceIDNumber: num,
			Value:          ac,
			ACPowerFixed:   ac,
			DCPowerInput:   dc,
			EfficiencyPct:  eff,
		}
		frame.flag(validateReading(&r, raw, true)...)
		frame.Readings = append(frame.Readings, r)
	}
	return frame, nil
}

func (n *Normalizer) normalizeGeneric(t *Table) (*Frame, error) {
	frame := emptyFrame(t.Columns)
	mapping := n.aliases.Map(t.Columns)
	frame.Mapping = mapping

	tsCol, ok := mapping.Column(RoleTimestamp)
	if !ok {
		return nil, &MissingColumnError{Role: string(RoleTimestamp)}
	}
	tsIdx := t.Index(tsCol)

	valueCol := ""
	for _, role := range []Role{RoleACPower, RoleDCPower, RoleEnergy} {
		if col, ok := mapping.Column(role); ok {
			valueCol = col
			break
		}
	}
	if valueCol == "" {
		valueCol = firstNumericColumn(t, tsIdx)
	}
	if valueCol == "" {
		return nil, &MissingColumnError{Role: "value"}
	}
	valueIdx := t.Index(valueCol)

	acCol, hasAC := mapping.Column(RoleACPower)
	dcCol, hasDC := mapping.Column(RoleDCPower)
	effCol, hasEff := mapping.Column(RoleEfficiency)
	srcCol, hasSrc := mapping.Column(RoleSource)
	acIdx, dcIdx, effIdx, srcIdx := t.Index(acCol), t.Index(dcCol), t.Index(effCol), t.Index(srcCol)
	ratio := hasAC && hasDC

	for i := range t.Rows {
		ts, ok := ParseTimestamp(t.Cell(i, tsIdx))
		if !ok {
			frame.flag(FlagTimestampUnparseable)
			continue
		}
		value := parseNumber(t.Cell(i, valueIdx))
		if math.IsNaN(value) {
			frame.flag(FlagValueNonNumeric)
			continue
		}

		r := Reading{
			Timestamp:     ts,
			Value:         value,
			ACPowerFixed:  value,
			DCPowerInput:  math.NaN(),
			EfficiencyPct: math.NaN(),
		}
		if hasDC {
			if dc := parseNumber(t.Cell(i, dcIdx)); dc != 0 {
				r.DCPowerInput = dc
			}
		}

		raw := math.NaN()
		switch {
		case ratio:
			ac := parseNumber(t.Cell(i, acIdx))
			if math.IsNaN(ac) {
				ac = 0
			}
			r.ACPowerFixed = ac
			r.EfficiencyPct, raw = efficiency(ac, r.DCPowerInput)
		case hasEff:
			r.EfficiencyPct = parseNumber(t.Cell(i, effIdx))
		}

		if hasSrc {
			r.SourceID = t.Cell(i, srcIdx)
			if r.SourceID == "" {
				r.SourceID = unknownSource
				frame.flag(FlagSourceMissing)
			}
		} else {
			r.SourceID = DefaultSource
			r.SourceIDNumber = 1
		}

		frame.flag(validateReading(&r, raw, hasDC)...)
		frame.Readings = append(frame.Readings, r)
	}

	sortReadings(frame.Readings)
	if hasSrc {
		factorize(frame.Readings)
	}
	return frame, nil
}

// firstNumericColumn returns the first column, other than skip, whose
// non-blank cells all parse as numbers.
func firstNumericColumn(t *Table, skip int) string {
	for c, name := range t.Columns {
		if c == skip {
			continue
		}
		seen := false
		numeric := true
		for r := range t.Rows {
			cell := t.Cell(r, c)
			if cell == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
				break
			}
		}
		if seen && numeric {
			return name
		}
	}
	return ""
}

// factorize assigns 1-based source numbers in first-seen order.
func factorize(readings []Reading) {
	ids := make(map[string]int)
	for i := range readings {
		id, ok := ids[readings[i].SourceID]
		if !ok {
			id = len(ids) + 1
			ids[readings[i].SourceID] = id
		}
		readings[i].SourceIDNumber = id
	}
}

func sortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}

func sortAndIndex(readings []Reading) {
	sortReadings(readings)
	for i := range readings {
		readings[i].TimeIndex = i
	}
}
