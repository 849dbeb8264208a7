package geojson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Store writes layers as GeoJSON files under a directory. Every file is
// written to a temporary name and renamed into place, so a failed run never
// leaves a partial file under the final name.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir. The directory is created on first write.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// LayerPath returns the file a layer of the given name is written to.
func (s *Store) LayerPath(name string) string {
	return filepath.Join(s.dir, name+".geojson")
}

// SummaryPath returns the file the summary for an output layer is written to.
func (s *Store) SummaryPath(name string) string {
	return filepath.Join(s.dir, name+"_summary.json")
}

// SavePoints writes a point layer.
func (s *Store) SavePoints(ctx context.Context, run domain.Run, layer *domain.PointLayer, overwrite bool) error {
	fc := geojson.NewFeatureCollection()
	for _, o := range layer.Observations {
		f := geojson.NewFeature(o.Point)
		f.ID = o.FID
		f.Properties["observed_at"] = o.Time.Format(time.RFC3339)
		if o.Category != "" {
			f.Properties["category"] = o.Category
		}
		for k, v := range o.Values {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"name": layer.Name, "run_id": run.ID}
	return s.writeCollection(ctx, layer.Name, fc, overwrite)
}

// SaveSegments writes a segment layer. Derived fields are added after the
// source properties and win on a name clash.
func (s *Store) SaveSegments(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, overwrite bool) error {
	return s.writeCollection(ctx, layer.Name, segmentCollection(run, layer), overwrite)
}

func segmentCollection(run domain.Run, layer *domain.SegmentLayer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range layer.Segments {
		var g orb.Geometry = seg.Geometry
		if len(seg.Geometry) == 1 {
			g = seg.Geometry[0]
		}
		f := geojson.NewFeature(g)
		f.ID = seg.FID
		for k, v := range seg.Properties {
			f.Properties[k] = v
		}
		for _, field := range layer.Fields {
			if v, ok := seg.Derived[field]; ok {
				f.Properties[field] = v
			}
		}
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"name": layer.Name, "run_id": run.ID}
	return fc
}

// Exists reports whether the layer file or its summary file is present.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	for _, path := range []string{s.LayerPath(name), s.SummaryPath(name)} {
		found, err := fileExists(path)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

// SaveResult writes the final layer and its summary. Both files are staged
// before either is moved into place. The previous layer is removed before the
// new summary lands, so a layer on disk always matches its summary.
func (s *Store) SaveResult(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, summary domain.Summary, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	layerPath, summaryPath := s.LayerPath(layer.Name), s.SummaryPath(summary.OutputLayer)
	if !overwrite {
		found, err := s.Exists(ctx, layer.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%s: %w", layerPath, domain.ErrOutputExists)
		}
	}

	fc := segmentCollection(run, layer)
	layerData, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal layer %s: %w", layer.Name, err)
	}
	summaryData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	layerTmp, err := s.stage(layerPath, layerData)
	if err != nil {
		return err
	}
	defer os.Remove(layerTmp) //nolint:errcheck // gone after a successful rename
	summaryTmp, err := s.stage(summaryPath, summaryData)
	if err != nil {
		return err
	}
	defer os.Remove(summaryTmp) //nolint:errcheck // gone after a successful rename

	if err := os.Remove(layerPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove previous %s: %w", layerPath, err)
	}
	if err := os.Rename(summaryTmp, summaryPath); err != nil {
		return fmt.Errorf("rename %s: %w", summaryPath, err)
	}
	if err := os.Rename(layerTmp, layerPath); err != nil {
		return fmt.Errorf("rename %s: %w", layerPath, err)
	}
	s.logger.Info("layer written", "layer", layer.Name, "path", layerPath, "features", len(fc.Features), "summary", summaryPath)
	return nil
}

func (s *Store) writeCollection(ctx context.Context, name string, fc *geojson.FeatureCollection, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal layer %s: %w", name, err)
	}
	path := s.LayerPath(name)
	if err := s.writeFile(path, data, overwrite); err != nil {
		return err
	}
	s.logger.Info("layer written", "layer", name, "path", path, "features", len(fc.Features))
	return nil
}

// writeFile replaces path atomically: temp file, sync, rename.
func (s *Store) writeFile(path string, data []byte, overwrite bool) error {
	if !overwrite {
		found, err := fileExists(path)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%s: %w", path, domain.ErrOutputExists)
		}
	}
	tmpPath, err := s.stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// stage writes data to a synced temp file next to path and returns its name.
func (s *Store) stage(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return tmpPath, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
