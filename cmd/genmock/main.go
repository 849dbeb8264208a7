// Command genmock writes a synthetic road network and crash point layer for
// exercising the hotspot pipeline. Output is deterministic for a given seed.
//
// Roads form a square grid of straight blocks in a meter-based projection.
// Crashes fall along random blocks with a small perpendicular jitter, plus a
// planted cluster on the blocks around the grid centre.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	opts := defaultOptions()
	out := flag.String("out", "data/mock", "output directory for crashes.geojson and roads.geojson")
	flag.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	flag.IntVar(&opts.Grid, "grid", opts.Grid, "intersections per side of the road grid")
	flag.Float64Var(&opts.Spacing, "spacing", opts.Spacing, "block length in meters")
	flag.IntVar(&opts.Background, "crashes", opts.Background, "background crash count")
	flag.IntVar(&opts.Cluster, "cluster", opts.Cluster, "extra crashes planted around the grid centre")
	flag.Float64Var(&opts.FatalShare, "fatal-share", opts.FatalShare, "probability a crash is fatal")
	flag.IntVar(&opts.Years, "years", opts.Years, "years spanned by crash timestamps")
	flag.Parse()

	if err := opts.validate(); err != nil {
		flag.Usage()
		return err
	}

	roads, crashes := generate(opts)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeCollection(filepath.Join(*out, "roads.geojson"), roads); err != nil {
		return fmt.Errorf("writing roads: %w", err)
	}
	log.Printf("wrote %d road segments", len(roads.Features))

	if err := writeCollection(filepath.Join(*out, "crashes.geojson"), crashes); err != nil {
		return fmt.Errorf("writing crashes: %w", err)
	}
	log.Printf("wrote %d crashes (%d planted around the centre)", len(crashes.Features), opts.Cluster)
	return nil
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
