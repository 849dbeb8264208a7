package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/adapter/sqlite"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Output formats understood by the layer stores.
const (
	FormatGeoJSON = "geojson"
	FormatSQLite  = "sqlite"
)

var errRequired = errors.New("is required")

// Config holds all run settings, populated from environment variables.
type Config struct {
	CrashLayer string
	RoadLayer  string
	DateField  string

	// Fatality analysis runs only when both are set.
	IncidentTypeField string
	FatalCategory     string

	SnapDistance       domain.Distance
	VertexSnapDistance domain.Distance
	LengthUnit         domain.LengthUnit
	CoordinateUnit     domain.LengthUnit
	XYTolerance        float64

	Granularity             domain.Granularity
	ZeroSpanPolicy          domain.ZeroSpanPolicy
	AnalyzeFatalityHotspots bool
	NeighborCount           int

	OutputDir        string
	OutputName       string
	OutputFormat     string
	Overwrite        bool
	KeepIntermediate bool

	HTTPAddr        string
	ShutdownTimeout time.Duration

	KafkaBrokers     []string
	KafkaResultTopic string

	LogLevel  string
	LogFormat string
}

// FatalitiesRequested reports whether the run classifies fatal crashes.
func (c *Config) FatalitiesRequested() bool {
	return c.IncidentTypeField != "" && c.FatalCategory != ""
}

// PublishEnabled reports whether results are written to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults
// where unset. Every returned error is a *domain.ConfigError.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, invalid("SHUTDOWN_TIMEOUT", err)
	}

	cfg := &Config{
		CrashLayer:        strings.TrimSpace(os.Getenv("CRASH_LAYER")),
		RoadLayer:         strings.TrimSpace(os.Getenv("ROAD_LAYER")),
		DateField:         strings.TrimSpace(os.Getenv("DATE_FIELD")),
		IncidentTypeField: strings.TrimSpace(os.Getenv("INCIDENT_TYPE_FIELD")),
		FatalCategory:     os.Getenv("FATAL_CATEGORY"),
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "./output"),
		OutputName:        sharedcfg.EnvOrDefault("OUTPUT_NAME", "Crash_hotspots"),
		OutputFormat:      strings.ToLower(sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatGeoJSON)),
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		ShutdownTimeout:   shutdownTimeout,
		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaResultTopic:  sharedcfg.EnvOrDefault("KAFKA_RESULT_TOPIC", "crash-hotspot-results"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	for _, req := range []struct{ key, value string }{
		{"CRASH_LAYER", cfg.CrashLayer},
		{"ROAD_LAYER", cfg.RoadLayer},
		{"DATE_FIELD", cfg.DateField},
	} {
		if req.value == "" {
			return nil, &domain.ConfigError{Field: req.key, Err: errRequired}
		}
	}

	if err := cfg.loadAnalysis(); err != nil {
		return nil, err
	}
	if err := cfg.loadOutput(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadAnalysis() error {
	if (c.IncidentTypeField == "") != (c.FatalCategory == "") {
		return &domain.ConfigError{
			Field: "FATAL_CATEGORY",
			Value: c.FatalCategory,
			Err:   errors.New("INCIDENT_TYPE_FIELD and FATAL_CATEGORY must be set together"),
		}
	}

	var err error
	snapUnit := os.Getenv("SNAP_UNIT")
	if c.SnapDistance, err = domain.ParseDistance(os.Getenv("SNAP_DISTANCE"), snapUnit); err != nil {
		return invalid("SNAP_DISTANCE", err)
	}
	c.VertexSnapDistance = c.SnapDistance
	if v := os.Getenv("VERTEX_SNAP_DISTANCE"); v != "" {
		if c.VertexSnapDistance, err = domain.ParseDistance(v, snapUnit); err != nil {
			return invalid("VERTEX_SNAP_DISTANCE", err)
		}
	}
	if c.LengthUnit, err = domain.ParseLengthUnit(sharedcfg.EnvOrDefault("LENGTH_UNIT", string(c.SnapDistance.Unit))); err != nil {
		return invalid("LENGTH_UNIT", err)
	}
	if c.CoordinateUnit, err = domain.ParseLengthUnit(sharedcfg.EnvOrDefault("COORDINATE_UNIT", string(domain.Meters))); err != nil {
		return invalid("COORDINATE_UNIT", err)
	}
	if c.XYTolerance, err = parseNonNegative("XY_TOLERANCE", "0.001"); err != nil {
		return err
	}

	if c.Granularity, err = domain.ParseGranularity(sharedcfg.EnvOrDefault("TIME_GRANULARITY", string(domain.Year))); err != nil {
		return invalid("TIME_GRANULARITY", err)
	}
	if c.ZeroSpanPolicy, err = domain.ParseZeroSpanPolicy(os.Getenv("ZERO_SPAN_POLICY")); err != nil {
		return invalid("ZERO_SPAN_POLICY", err)
	}
	if c.AnalyzeFatalityHotspots, err = parseBool("ANALYZE_FATALITY_HOTSPOTS", false); err != nil {
		return err
	}
	if c.AnalyzeFatalityHotspots && !c.FatalitiesRequested() {
		return &domain.ConfigError{
			Field: "ANALYZE_FATALITY_HOTSPOTS",
			Value: "true",
			Err:   errors.New("requires INCIDENT_TYPE_FIELD and FATAL_CATEGORY"),
		}
	}

	k := sharedcfg.EnvOrDefault("NEIGHBOR_COUNT", "8")
	if c.NeighborCount, err = strconv.Atoi(k); err != nil || c.NeighborCount < 1 {
		return &domain.ConfigError{Field: "NEIGHBOR_COUNT", Value: k, Err: errors.New("must be a positive integer")}
	}
	return nil
}

func (c *Config) loadOutput() error {
	switch c.OutputFormat {
	case FormatGeoJSON, FormatSQLite:
	default:
		return &domain.ConfigError{Field: "OUTPUT_FORMAT", Value: c.OutputFormat, Err: errors.New("must be geojson or sqlite")}
	}
	if c.OutputName != filepath.Base(c.OutputName) || strings.ContainsAny(c.OutputName, `/\.`) {
		return &domain.ConfigError{Field: "OUTPUT_NAME", Value: c.OutputName, Err: domain.ErrInvalidField}
	}
	if c.OutputFormat == FormatSQLite && sqlite.ReservedName(c.OutputName) {
		return &domain.ConfigError{Field: "OUTPUT_NAME", Value: c.OutputName, Err: fmt.Errorf("%w: reserved by the workspace", domain.ErrInvalidField)}
	}

	var err error
	if c.Overwrite, err = parseBool("OVERWRITE_OUTPUT", true); err != nil {
		return err
	}
	if c.KeepIntermediate, err = parseBool("KEEP_INTERMEDIATE", false); err != nil {
		return err
	}
	return nil
}

func invalid(key string, err error) error {
	return &domain.ConfigError{Field: key, Value: os.Getenv(key), Err: err}
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &domain.ConfigError{Field: key, Value: s, Err: errors.New("must be a boolean")}
	}
	return b, nil
}

func parseNonNegative(key, fallback string) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, fallback)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.ConfigError{Field: key, Value: s, Err: fmt.Errorf("%w: must be a non-negative number", domain.ErrInvalidDistance)}
	}
	return v, nil
}
