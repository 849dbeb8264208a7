// Command validate checks the integrity of a hotspot output layer: merge
// fields are never missing, rates and z-scores are finite, p-values lie in
// [0, 1], and every Gi bin agrees with its z-score. When the run summary is
// available its counts are cross-checked against the layer.
//
// Usage:
//
//	go run ./cmd/validate -dir output -name Crash_hotspots
//	go run ./cmd/validate -dir output -name Crash_hotspots -format sqlite
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/couchcryptid/crash-hotspot/internal/adapter/geojson"
	"github.com/couchcryptid/crash-hotspot/internal/adapter/sqlite"
	"github.com/couchcryptid/crash-hotspot/internal/config"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/jonboulle/clockwork"
)

func main() {
	dir := flag.String("dir", "output", "output directory of the run")
	name := flag.String("name", "Crash_hotspots", "output layer name")
	format := flag.String("format", config.FormatGeoJSON, "store format: geojson or sqlite")
	flag.Parse()

	os.Exit(run(context.Background(), *dir, *name, *format))
}

func run(ctx context.Context, dir, name, format string) int {
	fmt.Println("=== Crash Hotspot Output Validation ===")
	fmt.Println()

	layer, summary, err := load(ctx, dir, name, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", name, err)
		return 1
	}

	phases := []*phase{
		validateMergeFields(layer),
		validateRates(layer),
		validateHotspots(layer, domain.CrashHotspotFields()),
	}
	if layer.HasField(domain.FatalityHotspotFields().ZScore) {
		phases = append(phases, validateHotspots(layer, domain.FatalityHotspotFields()))
	}
	if summary != nil {
		phases = append(phases, validateSummary(layer, *summary))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Segments: %d, fields: %d\n", len(layer.Segments), len(layer.Fields))
	if summary == nil {
		fmt.Println("No run summary found; summary checks skipped.")
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// load reads the output layer and, when present, its summary.
func load(ctx context.Context, dir, name, format string) (*domain.SegmentLayer, *domain.Summary, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	switch format {
	case config.FormatSQLite:
		ws, err := sqlite.Open(ctx, dir, logger, clockwork.NewRealClock())
		if err != nil {
			return nil, nil, err
		}
		defer ws.Close()

		layer, err := ws.ReadSegments(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		summary, err := ws.Summary(ctx, name)
		if err != nil {
			return layer, nil, nil //nolint:nilerr // summary is optional
		}
		return layer, &summary, nil

	case config.FormatGeoJSON:
		store := geojson.NewStore(dir, logger)
		layer, err := geojson.NewSource().ReadSegments(ctx, store.LayerPath(name))
		if err != nil {
			return nil, nil, err
		}
		layer = withNumericProperties(layer)

		data, err := os.ReadFile(store.SummaryPath(name))
		if errors.Is(err, fs.ErrNotExist) {
			return layer, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		var summary domain.Summary
		if err := json.Unmarshal(data, &summary); err != nil {
			return nil, nil, fmt.Errorf("decode summary: %w", err)
		}
		return layer, &summary, nil
	}
	return nil, nil, fmt.Errorf("unsupported format %q", format)
}
