package telemetry

import (
	"encoding/json"
	"math"
)

const (
	FlagTimestampUnparseable = "timestamp_unparseable"
	FlagValueNonNumeric      = "value_non_numeric"
	FlagACMissing            = "ac_power_missing"
	FlagACNegative           = "ac_power_negative"
	FlagDCMissing            = "dc_input_missing"
	FlagEfficiencyClipped    = "efficiency_clipped"
	FlagSourceMissing        = "source_missing"
)

// validateReading returns the quality flags for a normalized reading.
// rawEff is the efficiency before clipping, NaN when undefined. hasDC is
// false when the dataset carries no DC input at all.
func validateReading(r *Reading, rawEff float64, hasDC bool) []string {
	var flags []string

	if math.IsNaN(r.ACPowerFixed) {
		flags = append(flags, FlagACMissing)
	} else if r.ACPowerFixed < 0 {
		flags = append(flags, FlagACNegative)
	}

	if hasDC && math.IsNaN(r.DCPowerInput) {
		flags = append(flags, FlagDCMissing)
	}

	if !math.IsNaN(rawEff) && (rawEff < 0 || rawEff > 100) {
		flags = append(flags, FlagEfficiencyClipped)
	}

	return flags
}

func (f *Frame) flag(flags ...string) {
	for _, fl := range flags {
		f.Quality[fl]++
	}
}

// QualityJSON encodes quality flag counts for storage ("" when empty).
func QualityJSON(quality map[string]int) string {
	if len(quality) == 0 {
		return ""
	}
	b, _ := json.Marshal(quality)
	return string(b)
}

// efficiency computes ac/dc*100 clipped to [0, 100]. Both the clipped and raw
// values are NaN when dc is missing or ac is undefined.
func efficiency(ac, dc float64) (clipped, raw float64) {
	if math.IsNaN(ac) || math.IsNaN(dc) || dc == 0 {
		return math.NaN(), math.NaN()
	}
	raw = ac / dc * 100
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return math.NaN(), math.NaN()
	}
	return math.Min(math.Max(raw, 0), 100), raw
}
