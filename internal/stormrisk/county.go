package stormrisk

import (
	"math"
	"sort"
	"strings"

	"github.com/lox/solixa/internal/models"
)

const (
	mlWeight  = 0.7
	sviWeight = 0.3
)

// CountyRisk is one row of the county blackout-risk table.
type CountyRisk = models.CountyRisk

// BuildCountyTable averages event probabilities per county and blends them
// with SVI. Counties known only to the SVI table take their SVI as risk;
// counties with history but no scored SVI take the model mean.
func BuildCountyTable(events []Event, probs []float64, svi SVITable) []CountyRisk {
	type acc struct {
		sum   float64
		n     int
		name  string
		state string
	}
	hist := make(map[string]*acc)
	for i, e := range events {
		a, ok := hist[e.FIPS]
		if !ok {
			a = &acc{name: e.CountyName, state: e.State}
			hist[e.FIPS] = a
		}
		a.sum += probs[i]
		a.n++
	}

	rows := make(map[string]CountyRisk, len(svi)+len(hist))
	for fips, rec := range svi {
		rows[fips] = sviRow(fips, rec)
	}
	for fips, a := range hist {
		ml := round4(a.sum / float64(a.n))
		row, inSVI := rows[fips]
		if !inSVI {
			row = CountyRisk{
				FIPS:      fips,
				County:    titleCase(a.name),
				StateName: titleCase(a.state),
				StateAbbr: StateAbbr(a.state),
			}
		}
		row.MLRisk = ml
		row.Events = a.n
		if row.SVIScored {
			row.Risk = round4(mlWeight*ml + sviWeight*row.SVI)
		} else {
			row.Risk = ml
		}
		rows[fips] = row
	}

	out := make([]CountyRisk, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FIPS < out[j].FIPS })
	return out
}

// sviRow is the row for a county with no storm history: its risk is its SVI.
func sviRow(fips string, rec SVIRecord) CountyRisk {
	return CountyRisk{
		FIPS:      fips,
		County:    rec.County,
		StateName: rec.StateName,
		StateAbbr: rec.StateAbbr,
		SVI:       rec.SVI,
		SVIScored: rec.Scored,
		Risk:      rec.SVI,
	}
}

// Lookup finds a county by FIPS in a table sorted by FIPS.
func Lookup(table []CountyRisk, fips string) (CountyRisk, bool) {
	fips = zfill(fips, 5)
	i := sort.Search(len(table), func(i int) bool { return table[i].FIPS >= fips })
	if i < len(table) && table[i].FIPS == fips {
		return table[i], true
	}
	return CountyRisk{}, false
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
