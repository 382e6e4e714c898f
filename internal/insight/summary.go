package insight

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lox/solixa/internal/forecast"
	"github.com/lox/solixa/internal/telemetry"
)

const noRecommendations = "System operating optimally, continue current practices"

// Summary returns a multi-paragraph narrative of the frame. Paragraphs are
// separated by a blank line. metrics may be nil when no forecast was run.
func Summary(f *telemetry.Frame, metrics *forecast.Metrics) string {
	if f.Len() == 0 {
		return ""
	}
	var paras []string

	first, last := f.Readings[0].Timestamp, f.Readings[0].Timestamp
	for _, r := range f.Readings {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	paras = append(paras, fmt.Sprintf("<strong>Dataset Analysis</strong>: Analyzed <strong>%s data points</strong> from %s to %s.",
		groupInt(f.Len()), first.Format("2006-01-02"), last.Format("2006-01-02")))

	vs := statsOf(values(f))
	consistency := "variable"
	if vs.std < vs.mean*0.3 {
		consistency = "consistent"
	}
	paras = append(paras, fmt.Sprintf("<strong>Energy Production</strong>: Total generation of <strong>%s kW</strong> with an average of <strong>%.2f kW</strong> per reading. Your system shows a standard deviation of <strong>%.2f kW</strong>, indicating %s performance.",
		thousands(vs.sum), vs.mean, vs.std, consistency))

	stability := "variable"
	switch {
	case vs.std < vs.mean*0.2:
		stability = "highly stable"
	case vs.std < vs.mean*0.4:
		stability = "moderately stable"
	}
	paras = append(paras, fmt.Sprintf("<strong>Performance Stability</strong>: Your system exhibits <strong>%s</strong> output patterns. Peak output reached <strong>%.2f kW</strong> while minimum recorded was <strong>%.2f kW</strong>.",
		stability, vs.max, vs.min))

	count := f.AnomalyCount()
	pct := anomalyPct(f)
	if count == 0 {
		paras = append(paras, "<strong>Anomaly Analysis</strong>: No anomalies detected. Your system is performing optimally with consistent output patterns.")
	} else {
		paras = append(paras, fmt.Sprintf("<strong>Anomaly Analysis</strong>: Detected <strong>%d anomalies</strong> (%.2f%% of data). %s",
			count, pct, AnomalyInterpretation(pct)))
	}

	peak, low, peakMean, lowMean := groupMean(f, hourOf)
	paras = append(paras, fmt.Sprintf("<strong>Temporal Patterns</strong>: Peak production occurs at <strong>%d:00</strong> (%.2f kW average), while lowest production is at <strong>%d:00</strong> (%.2f kW average). This %s typical solar behavior.",
		peak, peakMean, low, lowMean, PeakHourInterpretation(peak)))

	best, worst, _, _ := groupMean(f, weekdayOf)
	paras = append(paras, fmt.Sprintf("<strong>Weekly Patterns</strong>: <strong>%s</strong> shows the highest average production, while <strong>%s</strong> shows the lowest. This may indicate weather patterns or environmental factors affecting specific days.",
		dayNames[best], dayNames[worst]))

	if eff := efficiencies(f); len(eff) > 0 {
		es := statsOf(eff)
		paras = append(paras, fmt.Sprintf("<strong>Conversion Efficiency</strong>: Average efficiency of <strong>%.1f%%</strong> with standard deviation of <strong>%.1f%%</strong>. %s",
			es.mean, es.std, EfficiencyInterpretation(es.mean, es.std)))
	}

	if metrics != nil {
		paras = append(paras, fmt.Sprintf("<strong>Forecast Reliability</strong>: Predictive model achieved <strong>%.1f%% accuracy</strong> (R² = %.3f) with an average error of <strong>%.1f%%</strong>. %s",
			metrics.R2*100, metrics.R2, metrics.MAPE, ForecastInterpretation(metrics.R2)))
	}

	if g, ok := inverterGap(f); ok {
		paras = append(paras, fmt.Sprintf("<strong>Inverter Performance</strong>: Monitoring <strong>%d inverters</strong>. Top performer: <strong>%s</strong> (%.2f kW avg). Lowest performer: <strong>%s</strong> (%.2f kW avg). Performance gap: <strong>%.1f%%</strong>. %s",
			g.count, g.best, g.bestMean, g.worst, g.worstMean, g.gap, InverterGapInterpretation(g.gap)))
	}

	paras = append(paras, "<strong>Key Recommendations</strong>: "+Recommendations(f))
	return strings.Join(paras, "\n\n")
}

// AnomalyInterpretation describes an anomaly percentage.
func AnomalyInterpretation(pct float64) string {
	switch {
	case pct < 1:
		return "This is excellent and within normal operational parameters."
	case pct < 3:
		return "This is normal and typically caused by environmental factors like passing clouds or temporary shading."
	case pct < 5:
		return "This is moderately elevated and may warrant a visual inspection of panels for dust, debris, or persistent shading."
	default:
		return "This is elevated and suggests potential equipment issues or environmental challenges requiring professional assessment."
	}
}

// PeakHourInterpretation relates the peak production hour to a typical
// midday solar curve.
func PeakHourInterpretation(hour int) string {
	switch {
	case hour >= 10 && hour <= 14:
		return "aligns perfectly with"
	case hour >= 8 && hour < 10, hour > 14 && hour <= 16:
		return "is consistent with"
	default:
		return "deviates from"
	}
}

func EfficiencyInterpretation(avg, std float64) string {
	switch {
	case avg > 85 && std < 5:
		return "Excellent and highly consistent performance."
	case avg > 75 && std < 10:
		return "Good performance with acceptable variation."
	case avg > 65:
		return "Fair performance with room for optimization."
	default:
		return "Below optimal levels, professional inspection recommended."
	}
}

func ForecastInterpretation(r2 float64) string {
	switch {
	case r2 > 0.85:
		return "High confidence in predictions."
	case r2 > 0.7:
		return "Good predictive capability."
	case r2 > 0.5:
		return "Moderate reliability, more data may improve accuracy."
	default:
		return "Limited predictive power, consider collecting additional historical data."
	}
}

func InverterGapInterpretation(gap float64) string {
	switch {
	case gap < 10:
		return "All inverters performing uniformly well."
	case gap < 20:
		return "Minor performance variations, monitor lower performers."
	default:
		return "Significant performance gap, investigate underperforming units."
	}
}

type gapStats struct {
	count       int
	best, worst string
	bestMean    float64
	worstMean   float64
	gap         float64
}

// inverterGap compares mean Value across sources. ok is false for a single
// source or a zero overall mean.
func inverterGap(f *telemetry.Frame) (gapStats, bool) {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range f.Readings {
		if !finite(r.Value) {
			continue
		}
		sums[r.SourceID] += r.Value
		counts[r.SourceID]++
	}
	if len(sums) < 2 {
		return gapStats{}, false
	}
	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := gapStats{count: len(ids), bestMean: math.Inf(-1), worstMean: math.Inf(1)}
	total := 0.0
	for _, id := range ids {
		m := sums[id] / float64(counts[id])
		total += m
		if m > g.bestMean {
			g.best, g.bestMean = id, m
		}
		if m < g.worstMean {
			g.worst, g.worstMean = id, m
		}
	}
	mean := total / float64(len(ids))
	if mean == 0 {
		return gapStats{}, false
	}
	g.gap = (g.bestMean - g.worstMean) / mean * 100
	return g, true
}

// Recommendations returns the actionable follow-ups joined by " | ".
func Recommendations(f *telemetry.Frame) string {
	var recs []string
	pct := anomalyPct(f)
	switch {
	case pct > 5:
		recs = append(recs, "Schedule professional inspection")
	case pct > 2:
		recs = append(recs, "Visual panel inspection recommended")
	}

	if eff := efficiencies(f); len(eff) > 0 && statsOf(eff).mean < 75 {
		recs = append(recs, "Panel cleaning may improve efficiency")
	}

	if g, ok := inverterGap(f); ok && g.gap > 20 {
		recs = append(recs, "Investigate underperforming inverters")
	}

	if f.AnomalyCount() == 0 {
		recs = append(recs, "Maintain current maintenance schedule")
	}

	if len(recs) == 0 {
		return noRecommendations
	}
	return strings.Join(recs, " | ")
}
