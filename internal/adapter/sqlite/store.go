// Package sqlite persists analysis layers in a single-file SQLite workspace.
//
// Each layer is a table named after the layer with an fid primary key, a WKB
// geometry column, and one REAL column per numeric field. The layers table
// catalogs what the workspace holds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

// FileName is the workspace file created under the output directory.
const FileName = "workspace.sqlite"

// Layer kinds recorded in the catalog.
const (
	KindPoints   = "points"
	KindSegments = "segments"
)

// LayerInfo is one catalog row.
type LayerInfo struct {
	Name         string
	Kind         string
	RunID        string
	FeatureCount int
	Fields       []string
	CreatedAt    time.Time
}

// Layer names that collide with the workspace's own tables.
var reservedTables = []string{"layers", "summaries", "schema_migrations"}

// Store is a SQLite-backed layer store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	clock  clockwork.Clock
}

// Open opens (creating if needed) the workspace in dir and migrates its
// catalog. clock stamps catalog and summary rows.
func Open(ctx context.Context, dir string, logger *slog.Logger, clock clockwork.Clock) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	// One connection keeps every statement on the same SQLite handle.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping workspace: %w", err)
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger, clock: clock}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the workspace.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ReservedName reports whether name collides with a workspace table.
func ReservedName(name string) bool {
	for _, t := range reservedTables {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	return false
}

// Exists reports whether a layer or a summary is stored under name.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM layers WHERE name = ?) + (SELECT COUNT(*) FROM summaries WHERE layer = ?)`,
		name, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return n > 0, nil
}

// SavePoints replaces the table for a point layer.
func (s *Store) SavePoints(ctx context.Context, run domain.Run, layer *domain.PointLayer, overwrite bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.writePoints(ctx, tx, run, layer, overwrite)
	})
}

// SaveSegments replaces the table for a segment layer. Source properties are
// kept as a JSON column.
func (s *Store) SaveSegments(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, overwrite bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.writeSegments(ctx, tx, run, layer, overwrite)
	})
}

// SaveResult replaces the final layer and stores its summary in one
// transaction.
func (s *Store) SaveResult(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, summary domain.Summary, overwrite bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if !overwrite {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries WHERE layer = ?`, summary.OutputLayer).Scan(&n); err != nil {
				return fmt.Errorf("check summary: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("summary %s: %w", summary.OutputLayer, domain.ErrOutputExists)
			}
		}
		if err := s.writeSegments(ctx, tx, run, layer, overwrite); err != nil {
			return err
		}
		body, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO summaries (layer, run_id, body, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(layer) DO UPDATE SET run_id = excluded.run_id, body = excluded.body, created_at = excluded.created_at`,
			summary.OutputLayer, summary.RunID, string(body), s.stamp())
		if err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
		return nil
	})
}

func (s *Store) writePoints(ctx context.Context, tx *sql.Tx, run domain.Run, layer *domain.PointLayer, overwrite bool) error {
	cols := append([]string{"observed_at", "category"}, layer.Fields...)
	return s.replaceLayer(ctx, tx, run, layer.Name, KindPoints, layer.Fields, overwrite, cols, func(insert *sql.Stmt) error {
		for _, o := range layer.Observations {
			args := []any{o.FID, wkb.Value(o.Point), o.Time.UTC().Format(time.RFC3339Nano), o.Category}
			for _, f := range layer.Fields {
				args = append(args, nullable(o.Values, f))
			}
			if _, err := insert.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert point %d: %w", o.FID, err)
			}
		}
		return nil
	}, len(layer.Observations))
}

func (s *Store) writeSegments(ctx context.Context, tx *sql.Tx, run domain.Run, layer *domain.SegmentLayer, overwrite bool) error {
	cols := append([]string{"properties"}, layer.Fields...)
	return s.replaceLayer(ctx, tx, run, layer.Name, KindSegments, layer.Fields, overwrite, cols, func(insert *sql.Stmt) error {
		for _, seg := range layer.Segments {
			props, err := json.Marshal(seg.Properties)
			if err != nil {
				return fmt.Errorf("encode properties of segment %d: %w", seg.FID, err)
			}
			args := []any{seg.FID, wkb.Value(seg.Geometry), string(props)}
			for _, f := range layer.Fields {
				args = append(args, nullable(seg.Derived, f))
			}
			if _, err := insert.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert segment %d: %w", seg.FID, err)
			}
		}
		return nil
	}, len(layer.Segments))
}

// inTx runs fn in a transaction and commits when it succeeds.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) stamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// Summary returns the stored summary for an output layer.
func (s *Store) Summary(ctx context.Context, layer string) (domain.Summary, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM summaries WHERE layer = ?`, layer).Scan(&body)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load summary %s: %w", layer, err)
	}
	var sum domain.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		return domain.Summary{}, fmt.Errorf("decode summary %s: %w", layer, err)
	}
	return sum, nil
}

// Layers lists the catalog ordered by name.
func (s *Store) Layers(ctx context.Context) ([]LayerInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, run_id, feature_count, fields, created_at FROM layers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []LayerInfo
	for rows.Next() {
		var (
			info          LayerInfo
			fields, stamp string
		)
		if err := rows.Scan(&info.Name, &info.Kind, &info.RunID, &info.FeatureCount, &fields, &stamp); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &info.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", info.Name, err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("decode created_at of %s: %w", info.Name, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ReadSegments loads a segment layer written by SaveSegments.
func (s *Store) ReadSegments(ctx context.Context, name string) (*domain.SegmentLayer, error) {
	var (
		kind   string
		fields string
	)
	err := s.db.QueryRowContext(ctx, `SELECT kind, fields FROM layers WHERE name = ?`, name).Scan(&kind, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("layer %s: %w", name, errUnknownLayer)
	}
	if err != nil {
		return nil, fmt.Errorf("look up layer %s: %w", name, err)
	}
	if kind != KindSegments {
		return nil, fmt.Errorf("layer %s holds %s", name, kind)
	}

	layer := &domain.SegmentLayer{Name: name}
	if err := json.Unmarshal([]byte(fields), &layer.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", name, err)
	}

	cols := append([]string{"fid", "geom", "properties"}, layer.Fields...)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", joinIdents(cols), quoteIdent(name))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seg   = domain.Segment{Derived: map[string]float64{}}
			props string
			vals  = make([]sql.NullFloat64, len(layer.Fields))
		)
		dest := []any{&seg.FID, wkb.Scanner(&seg.Geometry), &props}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan layer %s: %w", name, err)
		}
		if err := json.Unmarshal([]byte(props), &seg.Properties); err != nil {
			return nil, fmt.Errorf("decode properties of segment %d: %w", seg.FID, err)
		}
		for i, f := range layer.Fields {
			if vals[i].Valid {
				seg.Derived[f] = vals[i].Float64
			}
		}
		layer.Segments = append(layer.Segments, seg)
	}
	return layer, rows.Err()
}

// replaceLayer drops and recreates a layer table inside tx, fills it through
// insertRows, and updates the catalog.
func (s *Store) replaceLayer(
	ctx context.Context,
	tx *sql.Tx,
	run domain.Run,
	name, kind string,
	fields []string,
	overwrite bool,
	cols []string,
	insertRows func(*sql.Stmt) error,
	count int,
) error {
	if strings.TrimSpace(name) == "" || ReservedName(name) {
		return &domain.ConfigError{Field: "layer name", Value: name, Err: domain.ErrInvalidField}
	}
	all := append([]string{"fid", "geom"}, cols...)
	if dup := duplicateColumn(all); dup != "" {
		return &domain.ConfigError{Field: "field name", Value: dup, Err: fmt.Errorf("%w: clashes with a column of layer %s", domain.ErrInvalidField, name)}
	}

	if !overwrite {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check layer %s: %w", name, err)
		}
		if n > 0 {
			return fmt.Errorf("layer %s: %w", name, domain.ErrOutputExists)
		}
	}

	table := quoteIdent(name)
	colDefs := []string{"fid INTEGER PRIMARY KEY", "geom BLOB NOT NULL"}
	for _, c := range cols {
		typ := "REAL"
		switch c {
		case "observed_at", "category", "properties":
			typ = "TEXT"
		}
		colDefs = append(colDefs, quoteIdent(c)+" "+typ)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(colDefs, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinIdents(all), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer insert.Close()

	if err := insertRows(insert); err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if fields == nil {
		fieldsJSON = []byte("[]")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO layers (name, kind, run_id, feature_count, fields, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind, run_id = excluded.run_id, feature_count = excluded.feature_count,
			fields = excluded.fields, created_at = excluded.created_at`,
		name, kind, run.ID, count, string(fieldsJSON), s.stamp())
	if err != nil {
		return fmt.Errorf("catalog %s: %w", name, err)
	}

	s.logger.Info("layer written", "layer", name, "kind", kind, "features", count, "store", "sqlite")
	return nil
}

// duplicateColumn returns the first column name that repeats, ignoring case.
func duplicateColumn(cols []string) string {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		k := strings.ToLower(c)
		if seen[k] {
			return c
		}
		seen[k] = true
	}
	return ""
}

var errUnknownLayer = errors.New("layer not in catalog")

// nullable returns the value for field, or nil when it is unset.
func nullable(values map[string]float64, field string) any {
	if v, ok := values[field]; ok {
		return v
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func joinIdents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
