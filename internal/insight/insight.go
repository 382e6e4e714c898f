// Package insight turns an analysed telemetry frame into plain-language
// findings. Messages carry <strong> markup for the web layer; Text strips it
// for SMS and terminal output.
package insight

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/solixa/internal/htmlutil"
	"github.com/lox/solixa/internal/telemetry"
)

// Insight is one finding.
type Insight struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Text returns the message without markup.
func (i Insight) Text() string {
	return htmlutil.ToText(i.Message)
}

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type valueStats struct {
	n             int
	sum, mean     float64
	min, max, std float64
}

func statsOf(values []float64) valueStats {
	if len(values) == 0 {
		return valueStats{}
	}
	s := valueStats{
		n:   len(values),
		sum: floats.Sum(values),
		min: floats.Min(values),
		max: floats.Max(values),
	}
	s.mean = s.sum / float64(s.n)
	if s.n > 1 {
		s.std = stat.StdDev(values, nil)
	}
	return s
}

// values returns the finite readings; blank power cells parse as NaN.
func values(f *telemetry.Frame) []float64 {
	out := make([]float64, 0, f.Len())
	for _, r := range f.Readings {
		if finite(r.Value) {
			out = append(out, r.Value)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func efficiencies(f *telemetry.Frame) []float64 {
	var out []float64
	for _, r := range f.Readings {
		if !math.IsNaN(r.EfficiencyPct) {
			out = append(out, r.EfficiencyPct)
		}
	}
	return out
}

// groupMean averages Value by key and returns the keys with the highest and
// lowest mean. Ties go to the smallest key.
func groupMean(f *telemetry.Frame, key func(telemetry.Reading) int) (best, worst int, bestMean, worstMean float64) {
	sums := map[int]float64{}
	counts := map[int]int{}
	for _, r := range f.Readings {
		if !finite(r.Value) {
			continue
		}
		k := key(r)
		sums[k] += r.Value
		counts[k]++
	}
	if len(sums) == 0 {
		return 0, 0, 0, 0
	}
	keys := make([]int, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	bestMean, worstMean = math.Inf(-1), math.Inf(1)
	for _, k := range keys {
		m := sums[k] / float64(counts[k])
		if m > bestMean {
			best, bestMean = k, m
		}
		if m < worstMean {
			worst, worstMean = k, m
		}
	}
	return best, worst, bestMean, worstMean
}

func hourOf(r telemetry.Reading) int { return r.Timestamp.Hour() }

func weekdayOf(r telemetry.Reading) int { return (int(r.Timestamp.Weekday()) + 6) % 7 }

func anomalyPct(f *telemetry.Frame) float64 {
	if f.Len() == 0 {
		return 0
	}
	return float64(f.AnomalyCount()) / float64(f.Len()) * 100
}

// Generate returns the headline findings for a detected frame.
func Generate(f *telemetry.Frame) []Insight {
	if f.Len() == 0 {
		return nil
	}
	var out []Insight
	vs := statsOf(values(f))

	out = append(out, Insight{
		Title: "Overall Performance",
		Message: fmt.Sprintf("Your solar system generated <strong>%s kW</strong> total energy with an average output of <strong>%.2f kW</strong> per reading. Peak performance reached <strong>%.2f kW</strong>, showing your system's maximum capacity.",
			thousands(vs.sum), vs.mean, vs.max),
	})

	peak, _, peakMean, _ := groupMean(f, hourOf)
	out = append(out, Insight{
		Title: "Peak Production Time",
		Message: fmt.Sprintf("Your solar panels produce the most energy around <strong>%d:00</strong> (averaging <strong>%.2f kW</strong>). This is your system's optimal performance window. Consider scheduling high-energy tasks during this period to maximize solar usage.",
			peak, peakMean),
	})

	count := f.AnomalyCount()
	pct := anomalyPct(f)
	switch {
	case count == 0:
		out = append(out, Insight{
			Title:   "System Health: Perfect",
			Message: "No anomalies detected in your solar data. Your system is operating consistently and efficiently within expected parameters. Keep up the excellent maintenance!",
		})
	case pct < 2:
		out = append(out, Insight{
			Title: "System Health: Excellent",
			Message: fmt.Sprintf("Detected <strong>%d unusual readings</strong> (%.1f%% of data). This low percentage is completely normal and typically caused by passing clouds, weather changes, or brief shading. Your system is performing well.",
				count, pct),
		})
	case pct < 5:
		out = append(out, Insight{
			Title: "System Health: Good",
			Message: fmt.Sprintf("Found <strong>%d unusual readings</strong> (%.1f%% of data). This moderate level suggests occasional issues like temporary shading, dust accumulation, or minor equipment variations. Consider a visual inspection of your panels.",
				count, pct),
		})
	default:
		out = append(out, Insight{
			Title: "System Health: Needs Attention",
			Message: fmt.Sprintf("Detected <strong>%d unusual readings</strong> (%.1f%% of data). This higher percentage may indicate persistent shading, equipment inefficiency, or maintenance needs. We recommend a professional inspection.",
				count, pct),
		})
	}

	if eff := efficiencies(f); len(eff) > 0 {
		es := statsOf(eff)
		minPositive := 0.0
		var positive []float64
		for _, e := range eff {
			if e > 0 {
				positive = append(positive, e)
			}
		}
		if len(positive) > 0 {
			minPositive = statsOf(positive).min
		}
		rating, advice := efficiencyRating(es.mean)
		out = append(out, Insight{
			Title: "System Efficiency: " + rating,
			Message: fmt.Sprintf("Your system operates at <strong>%.1f%% average efficiency</strong> (range: %.1f%%-%.1f%%). Most well-maintained solar systems operate between 75-85%%. %s",
				es.mean, minPositive, es.max, advice),
		})
	}

	return out
}

func efficiencyRating(avg float64) (rating, advice string) {
	switch {
	case avg > 85:
		return "Excellent", "Your system is operating at peak efficiency. Continue your current maintenance schedule."
	case avg > 75:
		return "Good", "Your system efficiency is solid. Regular cleaning and inspections will help maintain this level."
	case avg > 65:
		return "Fair", "Efficiency could be improved. Check for dust, debris, or shading issues. Consider panel cleaning."
	default:
		return "Needs Improvement", "Low efficiency detected. Professional inspection recommended to identify potential equipment or installation issues."
	}
}

// thousands formats v with two decimals and comma grouping.
func thousands(v float64) string {
	s := fmt.Sprintf("%.2f", math.Abs(v))
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func groupInt(n int) string {
	s := thousands(float64(n))
	return strings.TrimSuffix(s, ".00")
}
