package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CRASH_LAYER", "testdata/crashes.geojson")
	t.Setenv("ROAD_LAYER", "testdata/roads.geojson")
	t.Setenv("DATE_FIELD", "CrashDate")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "testdata/crashes.geojson", cfg.CrashLayer)
	assert.Equal(t, "testdata/roads.geojson", cfg.RoadLayer)
	assert.Equal(t, "CrashDate", cfg.DateField)
	assert.False(t, cfg.FatalitiesRequested())
	assert.Equal(t, domain.Distance{Value: 0.25, Unit: domain.Miles}, cfg.SnapDistance)
	assert.Equal(t, cfg.SnapDistance, cfg.VertexSnapDistance)
	assert.Equal(t, domain.Miles, cfg.LengthUnit)
	assert.Equal(t, domain.Meters, cfg.CoordinateUnit)
	assert.InDelta(t, 0.001, cfg.XYTolerance, 1e-15)
	assert.Equal(t, domain.Year, cfg.Granularity)
	assert.Equal(t, domain.ClampZeroSpan, cfg.ZeroSpanPolicy)
	assert.False(t, cfg.AnalyzeFatalityHotspots)
	assert.Equal(t, 8, cfg.NeighborCount)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, "Crash_hotspots", cfg.OutputName)
	assert.Equal(t, FormatGeoJSON, cfg.OutputFormat)
	assert.True(t, cfg.Overwrite)
	assert.False(t, cfg.KeepIntermediate)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.PublishEnabled())
	assert.Equal(t, "crash-hotspot-results", cfg.KafkaResultTopic)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("INCIDENT_TYPE_FIELD", "Severity")
	t.Setenv("FATAL_CATEGORY", "Fatal")
	t.Setenv("SNAP_DISTANCE", "50")
	t.Setenv("SNAP_UNIT", "Feet")
	t.Setenv("VERTEX_SNAP_DISTANCE", "80")
	t.Setenv("LENGTH_UNIT", "kilometers")
	t.Setenv("COORDINATE_UNIT", "feet")
	t.Setenv("XY_TOLERANCE", "0.01")
	t.Setenv("TIME_GRANULARITY", "Month")
	t.Setenv("ZERO_SPAN_POLICY", "error")
	t.Setenv("ANALYZE_FATALITY_HOTSPOTS", "true")
	t.Setenv("NEIGHBOR_COUNT", "12")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("OUTPUT_NAME", "Run_2024")
	t.Setenv("OUTPUT_FORMAT", "SQLite")
	t.Setenv("OVERWRITE_OUTPUT", "false")
	t.Setenv("KEEP_INTERMEDIATE", "1")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_RESULT_TOPIC", "hotspots")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.FatalitiesRequested())
	assert.Equal(t, "Severity", cfg.IncidentTypeField)
	assert.Equal(t, "Fatal", cfg.FatalCategory)
	assert.Equal(t, domain.Distance{Value: 50, Unit: domain.Feet}, cfg.SnapDistance)
	assert.Equal(t, domain.Distance{Value: 80, Unit: domain.Feet}, cfg.VertexSnapDistance)
	assert.Equal(t, domain.Kilometers, cfg.LengthUnit)
	assert.Equal(t, domain.Feet, cfg.CoordinateUnit)
	assert.InDelta(t, 0.01, cfg.XYTolerance, 1e-15)
	assert.Equal(t, domain.Month, cfg.Granularity)
	assert.Equal(t, domain.RejectZeroSpan, cfg.ZeroSpanPolicy)
	assert.True(t, cfg.AnalyzeFatalityHotspots)
	assert.Equal(t, 12, cfg.NeighborCount)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "Run_2024", cfg.OutputName)
	assert.Equal(t, FormatSQLite, cfg.OutputFormat)
	assert.False(t, cfg.Overwrite)
	assert.True(t, cfg.KeepIntermediate)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.PublishEnabled())
	assert.Equal(t, "hotspots", cfg.KafkaResultTopic)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_LengthUnitFollowsSnapUnit(t *testing.T) {
	setRequired(t)
	t.Setenv("SNAP_UNIT", "meters")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.Meters, cfg.LengthUnit)
}

func TestLoad_RequiredVariables(t *testing.T) {
	for _, key := range []string{"CRASH_LAYER", "ROAD_LAYER", "DATE_FIELD"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
			assert.Equal(t, domain.ClassConfig, domain.Classify(err))
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"SNAP_DISTANCE", "-2"},
		{"SNAP_DISTANCE", "far"},
		{"SNAP_UNIT", "cubits"},
		{"VERTEX_SNAP_DISTANCE", "-1"},
		{"LENGTH_UNIT", "light_years"},
		{"COORDINATE_UNIT", "degrees"},
		{"XY_TOLERANCE", "-0.1"},
		{"TIME_GRANULARITY", "day"},
		{"ZERO_SPAN_POLICY", "ignore"},
		{"ANALYZE_FATALITY_HOTSPOTS", "maybe"},
		{"NEIGHBOR_COUNT", "0"},
		{"OUTPUT_FORMAT", "shapefile"},
		{"OUTPUT_NAME", "../escape"},
		{"OVERWRITE_OUTPUT", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, domain.ClassConfig, domain.Classify(err))
		})
	}
}

func TestLoad_FatalityFieldsTogether(t *testing.T) {
	setRequired(t)
	t.Setenv("INCIDENT_TYPE_FIELD", "Severity")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FATAL_CATEGORY")
}

func TestLoad_FatalityHotspotsNeedCategory(t *testing.T) {
	setRequired(t)
	t.Setenv("ANALYZE_FATALITY_HOTSPOTS", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANALYZE_FATALITY_HOTSPOTS")
}

func TestLoad_OutputNameReservedBySQLite(t *testing.T) {
	setRequired(t)
	t.Setenv("OUTPUT_FORMAT", "sqlite")
	t.Setenv("OUTPUT_NAME", "layers")

	_, err := Load()
	require.ErrorIs(t, err, domain.ErrInvalidField)
	assert.Equal(t, domain.ClassConfig, domain.Classify(err))
	assert.Contains(t, err.Error(), "OUTPUT_NAME")

	t.Setenv("OUTPUT_FORMAT", "geojson")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "layers", cfg.OutputName)
}
