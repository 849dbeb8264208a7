package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		input string
		want  Granularity
	}{
		{"year", Year},
		{"YEAR", Year},
		{" Month ", Month},
		{"week", Week},
		{"WeEk", Week},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseGranularity(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGranularity_Invalid(t *testing.T) {
	for _, input := range []string{"", "day", "years", "fortnight", "decade"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseGranularity(input)
			require.ErrorIs(t, err, ErrInvalidGranularity)
			assert.Equal(t, ClassConfig, Classify(err))
		})
	}
}

func TestTimeSpan(t *testing.T) {
	base := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		days int
		g    Granularity
		want int
	}{
		{"exactly one year", 365, Year, 1},
		{"just under two and a half years", 912, Year, 2},
		{"two and a half months rounds to even", 75, Month, 2},
		{"one and a half months rounds to even", 45, Month, 2},
		{"three years", 1095, Year, 3},
		{"one month", 30, Month, 1},
		{"twelve months", 365, Month, 12},
		{"one week", 7, Week, 1},
		{"fifty-two weeks", 365, Week, 52},
		{"under half a unit", 100, Year, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := []time.Time{base.AddDate(0, 0, tt.days), base, base.AddDate(0, 0, tt.days/2)}
			got, err := TimeSpan(ts, tt.g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeSpan_HundredPointsOverOneYear(t *testing.T) {
	base := time.Date(2022, time.March, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]time.Time, 100)
	for i := range ts {
		ts[i] = base.Add(time.Duration(i) * 365 * 24 * time.Hour / 99)
	}

	got, err := TimeSpan(ts, Year)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestTimeSpan_SingleTimestamp(t *testing.T) {
	ts := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	for _, g := range []Granularity{Year, Month, Week} {
		got, err := TimeSpan([]time.Time{ts, ts, ts}, g)
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	}
}

func TestTimeSpan_Empty(t *testing.T) {
	_, err := TimeSpan(nil, Year)
	require.ErrorIs(t, err, ErrEmptyDataset)
	assert.Equal(t, ClassData, Classify(err))
}

func TestTimeSpan_InvalidGranularity(t *testing.T) {
	_, err := TimeSpan([]time.Time{time.Now()}, Granularity("day"))
	require.ErrorIs(t, err, ErrInvalidGranularity)
}

func TestZeroSpanPolicy(t *testing.T) {
	t.Run("clamp raises zero to one", func(t *testing.T) {
		span, clamped, err := ClampZeroSpan.Apply(0)
		require.NoError(t, err)
		assert.Equal(t, 1, span)
		assert.True(t, clamped)
	})

	t.Run("clamp leaves positive spans alone", func(t *testing.T) {
		span, clamped, err := ClampZeroSpan.Apply(4)
		require.NoError(t, err)
		assert.Equal(t, 4, span)
		assert.False(t, clamped)
	})

	t.Run("error policy rejects zero", func(t *testing.T) {
		_, _, err := RejectZeroSpan.Apply(0)
		require.ErrorIs(t, err, ErrZeroTimeSpan)
		assert.Equal(t, ClassData, Classify(err))
	})

	t.Run("parse", func(t *testing.T) {
		p, err := ParseZeroSpanPolicy("")
		require.NoError(t, err)
		assert.Equal(t, ClampZeroSpan, p)

		p, err = ParseZeroSpanPolicy("ERROR")
		require.NoError(t, err)
		assert.Equal(t, RejectZeroSpan, p)

		_, err = ParseZeroSpanPolicy("ignore")
		require.Error(t, err)
	})
}

func TestGranularitySuffix(t *testing.T) {
	assert.Equal(t, "Avg_crash_yr", CrashRateField(Year))
	assert.Equal(t, "Avg_crash_mo", CrashRateField(Month))
	assert.Equal(t, "Avg_fata_wk", FatalityRateField(Week))
}
