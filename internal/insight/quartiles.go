package insight

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/solixa/internal/learn"
	"github.com/lox/solixa/internal/telemetry"
)

// InverterStat is the AC output profile of one inverter.
type InverterStat struct {
	SourceID       string  `json:"source_id"`
	SourceIDNumber int     `json:"source_id_number"`
	MeanAC         float64 `json:"mean_ac"`
	StdAC          float64 `json:"std_ac"`
	MaxAC          float64 `json:"max_ac"`
}

// Quartiles buckets inverters by mean AC output.
type Quartiles struct {
	Q1           float64        `json:"q1"`
	Q2           float64        `json:"q2"`
	Q3           float64        `json:"q3"`
	High         []InverterStat `json:"high"`
	AboveAverage []InverterStat `json:"above_average"`
	BelowAverage []InverterStat `json:"below_average"`
	Low          []InverterStat `json:"low"`
	Best         *InverterStat  `json:"best,omitempty"`
	Worst        *InverterStat  `json:"worst,omitempty"`
	Alert        string         `json:"alert,omitempty"`
}

// InverterQuartiles groups readings with efficiency in [0.01, 100] by
// inverter and splits the inverters at the quartiles of their mean AC power.
// It returns nil when no reading qualifies.
func InverterQuartiles(f *telemetry.Frame) *Quartiles {
	type acc struct {
		id     string
		values []float64
	}
	groups := map[int]*acc{}
	for _, r := range f.Readings {
		e := r.EfficiencyPct
		if math.IsNaN(e) || e < 0.01 || e > 100 || math.IsNaN(r.ACPowerFixed) {
			continue
		}
		g, ok := groups[r.SourceIDNumber]
		if !ok {
			g = &acc{id: r.SourceID}
			groups[r.SourceIDNumber] = g
		}
		g.values = append(g.values, r.ACPowerFixed)
	}
	if len(groups) == 0 {
		return nil
	}

	nums := make([]int, 0, len(groups))
	for n := range groups {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	stats := make([]InverterStat, 0, len(nums))
	means := make([]float64, 0, len(nums))
	for _, n := range nums {
		g := groups[n]
		s := InverterStat{SourceID: g.id, SourceIDNumber: n}
		s.MeanAC = stat.Mean(g.values, nil)
		if len(g.values) > 1 {
			s.StdAC = stat.StdDev(g.values, nil)
		}
		s.MaxAC = g.values[0]
		for _, v := range g.values {
			s.MaxAC = math.Max(s.MaxAC, v)
		}
		stats = append(stats, s)
		means = append(means, s.MeanAC)
	}

	q := &Quartiles{
		Q1: learn.Percentile(means, 25),
		Q2: learn.Percentile(means, 50),
		Q3: learn.Percentile(means, 75),
	}
	for i := range stats {
		s := stats[i]
		switch {
		case s.MeanAC <= q.Q1:
			q.Low = append(q.Low, s)
		case s.MeanAC <= q.Q2:
			q.BelowAverage = append(q.BelowAverage, s)
		case s.MeanAC <= q.Q3:
			q.AboveAverage = append(q.AboveAverage, s)
		default:
			q.High = append(q.High, s)
		}
		if q.Best == nil || s.MeanAC > q.Best.MeanAC {
			q.Best = &stats[i]
		}
		if q.Worst == nil || s.MeanAC < q.Worst.MeanAC {
			q.Worst = &stats[i]
		}
	}
	if len(q.Low) > 0 {
		q.Alert = fmt.Sprintf("%d inverter(s) underperforming - may need maintenance, cleaning, or inspection", len(q.Low))
	}
	return q
}
