package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solixa/internal/telemetry"
)

var base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func frameOf(values ...float64) *telemetry.Frame {
	f := &telemetry.Frame{}
	for i, v := range values {
		f.Readings = append(f.Readings, telemetry.Reading{
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
			SourceID:      telemetry.DefaultSource,
			Value:         v,
			ACPowerFixed:  v,
			EfficiencyPct: math.NaN(),
			TimeIndex:     i,
		})
	}
	return f
}

func TestPathNorm(t *testing.T) {
	assert.Equal(t, 0.0, pathNorm(1))
	assert.Equal(t, 1.0, pathNorm(2))
	assert.InDelta(t, 10.2448, pathNorm(256), 1e-3)
}

func TestScaler(t *testing.T) {
	s := FitScaler([][]float64{{1, 5}, {3, 5}})
	out := s.Transform([][]float64{{1, 5}, {3, 5}})
	assert.Equal(t, []float64{-1, 0}, out[0])
	assert.Equal(t, []float64{1, 0}, out[1])
	assert.Equal(t, 1.0, s.Scale[1])
}

func TestDetectBelowMinRows(t *testing.T) {
	f := frameOf(1, 2, 3, 4, 5, 6, 7, 8, 900)
	for _, contamination := range []float64{0.1, 0, 0.6, 1} {
		out, err := NewDatasetDetector().Detect(f, contamination)
		require.NoError(t, err, "contamination %g", contamination)
		require.Equal(t, 9, out.Len())
		for _, r := range out.Readings {
			assert.False(t, r.Anomaly)
			assert.Equal(t, 0.0, r.AnomalyScore)
		}
	}
}

func TestDetectRequestModeNeeds25(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 10
	}
	values[5] = 1000
	out, err := NewRequestDetector().Detect(frameOf(values...), 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, out.AnomalyCount())
}

func TestDetectFlagsOutliers(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 10 + float64(i%5)*0.1
	}
	values[30] = 1000
	values[70] = 1000

	f := frameOf(values...)
	out, err := NewDatasetDetector().Detect(f, 0.1)
	require.NoError(t, err)

	assert.True(t, out.Readings[30].Anomaly)
	assert.True(t, out.Readings[70].Anomaly)
	assert.GreaterOrEqual(t, out.AnomalyCount(), 2)
	assert.LessOrEqual(t, out.AnomalyCount(), 12)
	assert.Less(t, out.Readings[30].AnomalyScore, out.Readings[10].AnomalyScore)

	// The input frame is left untouched.
	assert.Equal(t, 0, f.AnomalyCount())

	again, err := NewDatasetDetector().Detect(f, 0.1)
	require.NoError(t, err)
	for i := range out.Readings {
		assert.Equal(t, out.Readings[i].AnomalyScore, again.Readings[i].AnomalyScore)
	}

	assert.InDelta(t, float64(out.AnomalyCount())/100, Density(out), 1e-12)
}

func TestDetectInvalidContamination(t *testing.T) {
	f := frameOf(make([]float64, 30)...)
	for _, c := range []float64{0, -0.1, 0.6} {
		out, err := NewDatasetDetector().Detect(f, c)
		assert.ErrorIs(t, err, ErrInvalidContamination)
		assert.Equal(t, 30, out.Len())
		assert.Equal(t, 0, out.AnomalyCount())
	}
}

func TestDetectNonFinite(t *testing.T) {
	values := make([]float64, 30)
	values[3] = math.Inf(1)
	out, err := NewDatasetDetector().Detect(frameOf(values...), 0.05)
	assert.ErrorIs(t, err, ErrNumerical)
	require.Equal(t, 30, out.Len())
	assert.Equal(t, 0, out.AnomalyCount())
}

func TestDensityEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Density(&telemetry.Frame{}))
	assert.Equal(t, 0.0, Density(nil))
}

func TestDetectEfficiency(t *testing.T) {
	f := &telemetry.Frame{}
	add := func(src string, slot int, eff float64) {
		f.Readings = append(f.Readings, telemetry.Reading{
			Timestamp:     base.Add(time.Duration(slot) * GridInterval),
			SourceID:      src,
			EfficiencyPct: eff,
		})
	}
	for i := 0; i < 40; i++ {
		eff := 95 + float64(i%4)*0.1
		if i == 17 {
			eff = 40
		}
		add("S2", i, eff)
	}
	for i := 0; i < 5; i++ {
		add("S1", i, 96)
	}
	add("S1", 6, 0.05) // below the valid band, ignored

	points, err := NewDatasetDetector().DetectEfficiency(f, 0.05)
	require.NoError(t, err)
	require.Len(t, points, 80)

	assert.Equal(t, "S1", points[0].SourceID)
	assert.Equal(t, "S2", points[40].SourceID)
	assert.True(t, math.IsNaN(points[6].Efficiency))

	for _, p := range points[:40] {
		assert.False(t, p.Anomaly, "too few points to fit S1")
	}
	assert.True(t, points[40+17].Anomaly)
}

func TestDetectEfficiencyEmpty(t *testing.T) {
	_, err := NewDatasetDetector().DetectEfficiency(frameOf(1, 2, 3), 0.05)
	assert.ErrorIs(t, err, ErrNoEfficiencyData)
}
