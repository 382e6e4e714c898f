package telemetry

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCSV(t *testing.T, s string) *Table {
	t.Helper()
	table, err := ReadCSV(strings.NewReader(s))
	require.NoError(t, err)
	return table
}

func TestMapColumns(t *testing.T) {
	aliases := DefaultAliases()

	tests := []struct {
		name    string
		headers []string
		want    Mapping
	}{
		{
			name:    "exact matches",
			headers: []string{"Timestamp", "AC_Power", "DC_Power", "Inverter"},
			want: Mapping{
				RoleTimestamp: "Timestamp",
				RoleACPower:   "AC_Power",
				RoleDCPower:   "DC_Power",
				RoleSource:    "Inverter",
			},
		},
		{
			name:    "substring fallback",
			headers: []string{"reading_datetime_utc", "total_kwh"},
			want: Mapping{
				RoleTimestamp: "reading_datetime_utc",
				RoleEnergy:    "total_kwh",
			},
		},
		{
			name:    "exact beats earlier substring",
			headers: []string{"date_local", "date", "output"},
			want: Mapping{
				RoleTimestamp: "date",
				RoleACPower:   "output",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aliases.Map(tt.headers)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapColumnsAliasPriority(t *testing.T) {
	// "datetime" is a higher priority alias than "date", so it wins even
	// though "date" appears first in the headers.
	got := DefaultAliases().Map([]string{"date", "datetime"})
	assert.Equal(t, "datetime", got[RoleTimestamp])
}

func TestParseAliasesRejectsDuplicates(t *testing.T) {
	_, err := ParseAliases([]byte("roles:\n  - role: a\n    aliases: [x]\n  - role: a\n    aliases: [y]\n"))
	assert.Error(t, err)
}

func TestNormalizeInverterScenario(t *testing.T) {
	table := mustCSV(t, "SOURCE_KEY,DATE_TIME,AC_POWER,DC_POWER\nINV-1,2024-01-01 12:00,5.0,6.0\n")

	frame, err := Normalize(table)
	require.NoError(t, err)
	require.Len(t, frame.Readings, 1)

	r := frame.Readings[0]
	assert.True(t, frame.Inverter)
	assert.Equal(t, "S1", r.SourceID)
	assert.Equal(t, 1, r.SourceIDNumber)
	assert.InDelta(t, 50.0, r.ACPowerFixed, 1e-9)
	assert.InDelta(t, 50.0, r.Value, 1e-9)
	assert.InDelta(t, 100.0, r.EfficiencyPct, 1e-9)
	assert.Equal(t, 0, r.TimeIndex)
	assert.Equal(t, 1, frame.Quality[FlagEfficiencyClipped])
}

func TestNormalizeInverterPath(t *testing.T) {
	csv := `SOURCE_KEY,DATE_TIME,AC_POWER,DC_POWER
B,15-05-2020 00:15,1.0,20
A,15-05-2020 00:00,2.0,40
,15-05-2020 00:30,3.0,0
A,not a date,4.0,50
B,15-05-2020 00:45,,50
`
	frame, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)
	require.Len(t, frame.Readings, 4)

	// Ids follow first-seen order in the raw rows, not sorted order.
	first := frame.Readings[0]
	assert.Equal(t, "S2", first.SourceID)
	assert.Equal(t, 2, first.SourceIDNumber)
	assert.InDelta(t, 50.0, first.EfficiencyPct, 1e-9)

	unknown := frame.Readings[2]
	assert.Equal(t, "S3", unknown.SourceID)
	assert.True(t, math.IsNaN(unknown.DCPowerInput))
	assert.True(t, math.IsNaN(unknown.EfficiencyPct))

	missingAC := frame.Readings[3]
	assert.True(t, math.IsNaN(missingAC.ACPowerFixed))

	assert.Equal(t, 1, frame.Quality[FlagTimestampUnparseable])
	assert.Equal(t, 1, frame.Quality[FlagSourceMissing])
	assert.Equal(t, 1, frame.Quality[FlagACMissing])
}

func TestNormalizeGeneric(t *testing.T) {
	csv := `time,ac_kw,dc_kw,device
2024-03-01 10:00,4,5,inv-b
2024-03-01 09:00,3,0,inv-a
2024-03-01 11:00,x,5,inv-a
2024-03-01 08:00,,4,inv-b
`
	frame, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)
	require.Len(t, frame.Readings, 2)

	assert.False(t, frame.Inverter)
	assert.Equal(t, "ac_kw", frame.Mapping[RoleACPower])
	assert.Equal(t, "dc_kw", frame.Mapping[RoleDCPower])

	r0, r1 := frame.Readings[0], frame.Readings[1]
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), r0.Timestamp)
	assert.Equal(t, "inv-a", r0.SourceID)
	assert.Equal(t, 1, r0.SourceIDNumber)
	assert.True(t, math.IsNaN(r0.EfficiencyPct), "zero DC input is not a valid divisor")

	assert.Equal(t, "inv-b", r1.SourceID)
	assert.Equal(t, 2, r1.SourceIDNumber)
	assert.InDelta(t, 80.0, r1.EfficiencyPct, 1e-9)
	assert.Equal(t, 2, frame.Quality[FlagValueNonNumeric])
}

func TestNormalizeGenericEfficiencyColumn(t *testing.T) {
	csv := "recorded,energy,eff\n2024-01-01 00:00,10,91.5\n2024-01-01 01:00,12,90\n"
	frame, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)

	r := frame.Readings[0]
	assert.Equal(t, DefaultSource, r.SourceID)
	assert.Equal(t, 1, r.SourceIDNumber)
	assert.InDelta(t, 91.5, r.EfficiencyPct, 1e-9)
	assert.InDelta(t, 10.0, r.ACPowerFixed, 1e-9)
}

func TestNormalizeGenericNumericFallback(t *testing.T) {
	csv := "stamp_date,label,reading\n2024-01-01,abc,1.5\n2024-01-02,def,2.5\n"
	frame, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, frame.Readings[0].Value, 1e-9)
}

func TestNormalizeErrors(t *testing.T) {
	t.Run("missing timestamp", func(t *testing.T) {
		frame, err := Normalize(mustCSV(t, "power,other\n1,2\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingColumn))
		assert.Contains(t, err.Error(), "timestamp")
		assert.Equal(t, []string{"power", "other"}, frame.Columns)
		assert.Zero(t, frame.Len())
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := Normalize(mustCSV(t, "timestamp,label\n2024-01-01,abc\n"))
		var mc *MissingColumnError
		require.ErrorAs(t, err, &mc)
		assert.Equal(t, "value", mc.Role)
	})

	t.Run("no valid rows", func(t *testing.T) {
		_, err := Normalize(mustCSV(t, "timestamp,ac_power\nnope,1\n"))
		assert.ErrorIs(t, err, ErrNoValidRows)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyInput)

		_, err = ReadCSV(strings.NewReader("timestamp,ac_power\n"))
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("unreadable", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("a,b\n\"unterminated,1\n"))
		assert.ErrorIs(t, err, ErrUnreadable)
	})
}

func TestTimeIndexMonotonicAndIdempotent(t *testing.T) {
	csv := `timestamp,ac_power
2024-01-01 03:00,3
2024-01-01 01:00,1
2024-01-01 02:00,2
2024-01-01 01:00,9
`
	first, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)
	second, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)

	for i, r := range first.Readings {
		assert.Equal(t, i, r.TimeIndex)
		if i > 0 {
			assert.False(t, r.Timestamp.Before(first.Readings[i-1].Timestamp))
		}
	}
	require.Equal(t, first.Len(), second.Len())
	for i := range first.Readings {
		assert.Equal(t, first.Readings[i].TimeIndex, second.Readings[i].TimeIndex)
		assert.Equal(t, first.Readings[i].Value, second.Readings[i].Value)
		assert.Equal(t, first.Readings[i].Timestamp, second.Readings[i].Timestamp)
	}
	// Equal timestamps keep input order.
	assert.InDelta(t, 1.0, first.Readings[0].Value, 1e-9)
	assert.InDelta(t, 9.0, first.Readings[1].Value, 1e-9)
}

func TestEfficiencyBound(t *testing.T) {
	csv := "timestamp,ac_power,dc_power\n" +
		"2024-01-01 00:00,-5,10\n" +
		"2024-01-01 01:00,50,10\n" +
		"2024-01-01 02:00,7,10\n"
	frame, err := Normalize(mustCSV(t, csv))
	require.NoError(t, err)
	for _, r := range frame.Readings {
		assert.GreaterOrEqual(t, r.EfficiencyPct, 0.0)
		assert.LessOrEqual(t, r.EfficiencyPct, 100.0)
	}
}

func TestReadJSONPreservesKeyOrder(t *testing.T) {
	table, err := ReadJSON([]byte(`[{"timestamp":"2024-01-01 00:00","ac_power":1.5,"ok":true},{"ac_power":null,"timestamp":"2024-01-01 01:00","extra":"x"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "ac_power", "ok", "extra"}, table.Columns)
	assert.Equal(t, []string{"2024-01-01 00:00", "1.5", "true", ""}, table.Rows[0])
	assert.Equal(t, []string{"2024-01-01 01:00", "", "", "x"}, table.Rows[1])

	_, err = ReadJSON([]byte(`[]`))
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = ReadJSON([]byte(`{"not":"array"}`))
	assert.ErrorIs(t, err, ErrUnreadable)
}
