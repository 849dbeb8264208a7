package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/couchcryptid/crash-hotspot/internal/hotspot"
	"github.com/couchcryptid/crash-hotspot/internal/observability"
	"github.com/couchcryptid/crash-hotspot/internal/spatial"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// LayerSource reads the input layers.
type LayerSource interface {
	ReadPoints(ctx context.Context, path string, schema domain.PointSchema) (*domain.PointLayer, error)
	ReadSegments(ctx context.Context, path string) (*domain.SegmentLayer, error)
}

// LayerStore persists output layers and the run summary.
type LayerStore interface {
	// Exists reports whether a layer named name, or a summary for it, is stored.
	Exists(ctx context.Context, name string) (bool, error)
	SavePoints(ctx context.Context, run domain.Run, layer *domain.PointLayer, overwrite bool) error
	SaveSegments(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, overwrite bool) error
	// SaveResult stores the final layer together with its summary. Either both
	// are replaced or neither is.
	SaveResult(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, summary domain.Summary, overwrite bool) error
}

// Publisher forwards a finished result downstream.
type Publisher interface {
	Publish(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, summary domain.Summary) error
}

// Pipeline runs the crash hotspot analysis from input layers to stored output.
type Pipeline struct {
	source    LayerSource
	store     LayerStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	ready   atomic.Bool
	mu      sync.RWMutex
	summary domain.Summary
}

// New creates a Pipeline. publisher may be nil.
func New(source LayerSource, store LayerStore, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	return &Pipeline{
		source:    source,
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// LastSummary returns the summary of the most recent successful run.
func (p *Pipeline) LastSummary() (domain.Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.summary, p.ready.Load()
}

// run carries the layers and scalars one invocation builds up stage by stage.
type run struct {
	domain.Run
	params Params

	points     *domain.PointLayer
	roads      *domain.SegmentLayer
	working    *domain.PointLayer
	conflated  *domain.PointLayer
	joined     *domain.SegmentLayer
	output     *domain.SegmentLayer
	fatalities domain.FatalityTotal

	span        int
	spanClamped bool
	lengthField string
	matches     int
	band        domain.DistanceBand
	crashStats  hotspot.Stats
	fatalStats  hotspot.Stats
	summary     domain.Summary
}

// Run executes every stage in order. Any failure aborts the remaining stages
// and nothing is written under the output name. The returned error is
// classified by domain.Classify.
func (p *Pipeline) Run(ctx context.Context, params Params) (domain.Summary, error) {
	start := p.clock.Now()
	summary, err := p.run(ctx, params)
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues(outcome(err)).Inc()
		p.logger.Error("analysis run failed", "error", err, "class", domain.Classify(err).String())
		return domain.Summary{}, err
	}

	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.mu.Lock()
	p.summary = summary
	p.mu.Unlock()
	p.ready.Store(true)

	p.logger.Info("analysis run complete",
		"run_id", summary.RunID,
		"output", summary.OutputLayer,
		"segments", summary.TotalSegments,
		"hot_spots", summary.HotSpots,
		"cold_spots", summary.ColdSpots,
		"duration", p.clock.Since(start),
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, params Params) (domain.Summary, error) {
	params, err := params.normalize()
	if err != nil {
		return domain.Summary{}, err
	}

	r := &run{
		Run:    domain.Run{ID: uuid.NewString(), StartedAt: p.clock.Now()},
		params: params,
	}
	p.logger.Info("analysis run started",
		"run_id", r.ID,
		"crash_layer", params.CrashLayer,
		"road_layer", params.RoadLayer,
		"granularity", params.Granularity,
		"snap_distance", params.SnapDistance.String(),
		"fatalities", params.fatalities(),
	)

	if err := p.checkOutputs(ctx, params); err != nil {
		return domain.Summary{}, err
	}

	stages := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"read", p.read},
		{"classify", p.classify},
		{"time_span", p.timeSpan},
		{"conflate", p.conflate},
		{"aggregate", p.aggregate},
		{"rate", p.rates},
		{"distance_band", p.distanceBand},
		{"hotspot", p.hotspots},
		{"store", p.persist},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return domain.Summary{}, fmt.Errorf("%s: %w", st.name, err)
		}
		begin := p.clock.Now()
		if err := st.fn(ctx, r); err != nil {
			return domain.Summary{}, err
		}
		elapsed := p.clock.Since(begin)
		p.metrics.StageDuration.WithLabelValues(st.name).Observe(elapsed.Seconds())
		p.logger.Debug("stage complete", "run_id", r.ID, "stage", st.name, "duration", elapsed)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, r.Run, r.output, r.summary); err != nil {
			return domain.Summary{}, err
		}
	}
	return r.summary, nil
}

func (p *Pipeline) read(ctx context.Context, r *run) error {
	points, err := p.source.ReadPoints(ctx, r.params.CrashLayer, r.params.Schema)
	if err != nil {
		return fmt.Errorf("read crash layer: %w", err)
	}
	if len(points.Observations) == 0 {
		return &domain.DataError{Stage: "read", Detail: "crash layer " + r.params.CrashLayer, Err: domain.ErrEmptyDataset}
	}
	roads, err := p.source.ReadSegments(ctx, r.params.RoadLayer)
	if err != nil {
		return fmt.Errorf("read road layer: %w", err)
	}
	if len(roads.Segments) == 0 {
		return &domain.DataError{Stage: "read", Detail: "road layer " + r.params.RoadLayer, Err: domain.ErrEmptyDataset}
	}

	r.points, r.roads = points, roads
	p.metrics.ObservationsProcessed.Add(float64(len(points.Observations)))
	p.logger.Info("layers read", "run_id", r.ID, "observations", len(points.Observations), "segments", len(roads.Segments))
	return nil
}

// classify sets the fatal flag on the run's own copy of the points.
func (p *Pipeline) classify(_ context.Context, r *run) error {
	r.working = r.points.Clone(r.points.Name)
	if !r.params.fatalities() {
		return nil
	}
	n := domain.ClassifyFatalities(r.working, r.params.FatalCategory)
	r.fatalities = domain.Fatalities(n)
	p.logger.Info("fatal crashes classified", "run_id", r.ID, "category", r.params.FatalCategory, "fatal", n)
	return nil
}

func (p *Pipeline) timeSpan(_ context.Context, r *run) error {
	span, err := domain.TimeSpan(r.working.Timestamps(), r.params.Granularity)
	if err != nil {
		return err
	}
	effective, clamped, err := r.params.ZeroSpanPolicy.Apply(span)
	if err != nil {
		return err
	}
	if clamped {
		p.logger.Warn("time span rounded to zero, clamped to one unit", "run_id", r.ID, "granularity", r.params.Granularity)
	}
	r.span, r.spanClamped = effective, clamped
	p.logger.Info("time span estimated", "run_id", r.ID, "span", effective, "granularity", r.params.Granularity)
	return nil
}

func (p *Pipeline) conflate(_ context.Context, r *run) error {
	coord := r.params.CoordinateUnit
	res, err := spatial.Conflate(r.working, r.roads, spatial.SnapOptions{
		EdgeTolerance:   r.params.SnapDistance.In(coord),
		VertexTolerance: r.params.VertexSnapDistance.In(coord),
	}, p.logger)
	if err != nil {
		return err
	}
	r.conflated = res.Layer
	p.metrics.PointsSnapped.Add(float64(res.Snapped))
	return nil
}

func (p *Pipeline) aggregate(_ context.Context, r *run) error {
	r.lengthField = domain.LengthFieldName(r.params.LengthUnit)
	res, err := spatial.Aggregate(r.roads, r.conflated, spatial.JoinOptions{
		Spec:           domain.CrashMergeSpec(r.params.fatalities()),
		XYTolerance:    r.params.XYTolerance,
		LengthField:    r.lengthField,
		LengthUnit:     r.params.LengthUnit,
		CoordinateUnit: r.params.CoordinateUnit,
	}, p.logger)
	if err != nil {
		return err
	}
	r.joined = res.Layer
	r.matches = res.SegmentsWithMatches
	return nil
}

func (p *Pipeline) rates(_ context.Context, r *run) error {
	g := r.params.Granularity
	if err := domain.NormalizeRate(r.joined, domain.RateInput{
		CountField:  domain.CrashCountField,
		LengthField: r.lengthField,
		OutputField: domain.CrashRateField(g),
	}, r.span); err != nil {
		return err
	}
	if r.params.fatalities() {
		if err := domain.NormalizeRate(r.joined, domain.RateInput{
			CountField:  domain.FatalitySumField,
			LengthField: r.lengthField,
			OutputField: domain.FatalityRateField(g),
		}, r.span); err != nil {
			return err
		}
	}
	p.logger.Info("rates normalized", "run_id", r.ID, "span", r.span, "length_field", r.lengthField)
	return nil
}

func (p *Pipeline) distanceBand(_ context.Context, r *run) error {
	band, err := spatial.NeighborDistanceBand(r.conflated.Points(), r.params.NeighborCount)
	if err != nil {
		return err
	}
	r.band = band
	p.logger.Info("distance band calculated", "run_id", r.ID, "k", band.K, "min", band.Min, "avg", band.Avg, "max", band.Max)
	return nil
}

// hotspots runs Gi* on a copy of the joined layer named after the output so
// the joined layer itself stays as aggregated.
func (p *Pipeline) hotspots(_ context.Context, r *run) error {
	out := r.joined.Clone(r.params.OutputName)
	graph, err := hotspot.BuildGraph(hotspot.Centroids(out), r.band.Avg)
	if err != nil {
		return err
	}

	r.crashStats, err = hotspot.Analyze(out, graph, domain.CrashRateField(r.params.Granularity), domain.CrashHotspotFields(), p.logger)
	if err != nil {
		return err
	}
	p.metrics.HotspotSegments.WithLabelValues("crash", "hot").Set(float64(r.crashStats.HotSpots))
	p.metrics.HotspotSegments.WithLabelValues("crash", "cold").Set(float64(r.crashStats.ColdSpots))

	if r.params.AnalyzeFatalityHotspots {
		r.fatalStats, err = hotspot.Analyze(out, graph, domain.FatalityRateField(r.params.Granularity), domain.FatalityHotspotFields(), p.logger)
		if err != nil {
			return err
		}
		p.metrics.HotspotSegments.WithLabelValues("fatality", "hot").Set(float64(r.fatalStats.HotSpots))
		p.metrics.HotspotSegments.WithLabelValues("fatality", "cold").Set(float64(r.fatalStats.ColdSpots))
	}

	r.output = out
	p.metrics.SegmentsAnalyzed.Set(float64(len(out.Segments)))
	return nil
}

// checkOutputs fails the run before any layer is read when overwriting is off
// and a layer it would write is already stored.
func (p *Pipeline) checkOutputs(ctx context.Context, params Params) error {
	if params.Overwrite {
		return nil
	}
	names := []string{params.OutputName}
	if params.KeepIntermediate {
		names = append(names, spatial.ConflatedLayerName, spatial.JoinedLayerName)
	}
	for _, name := range names {
		found, err := p.store.Exists(ctx, name)
		if err != nil {
			return fmt.Errorf("check output %s: %w", name, err)
		}
		if found {
			return &domain.ConfigError{Field: "OUTPUT_NAME", Value: name, Err: domain.ErrOutputExists}
		}
	}
	return nil
}

// persist writes the intermediates when requested, then the final layer and
// its summary as one result.
func (p *Pipeline) persist(ctx context.Context, r *run) error {
	overwrite := r.params.Overwrite
	if r.params.KeepIntermediate {
		if err := p.store.SavePoints(ctx, r.Run, r.conflated, overwrite); err != nil {
			return fmt.Errorf("store %s: %w", r.conflated.Name, err)
		}
		if err := p.store.SaveSegments(ctx, r.Run, r.joined, overwrite); err != nil {
			return fmt.Errorf("store %s: %w", r.joined.Name, err)
		}
	}
	r.summary = p.buildSummary(r)
	if err := p.store.SaveResult(ctx, r.Run, r.output, r.summary, overwrite); err != nil {
		return fmt.Errorf("store %s: %w", r.output.Name, err)
	}
	return nil
}

func (p *Pipeline) buildSummary(r *run) domain.Summary {
	total := len(r.output.Segments)
	var involvement float64
	if total > 0 {
		involvement = float64(r.matches) / float64(total) * 100
	}
	return domain.Summary{
		RunID:                r.ID,
		GeneratedAt:          p.clock.Now().UTC(),
		CrashLayer:           r.params.CrashLayer,
		RoadLayer:            r.params.RoadLayer,
		OutputLayer:          r.output.Name,
		Granularity:          r.params.Granularity,
		TimeSpan:             r.span,
		SpanClamped:          r.spanClamped,
		Band:                 r.band,
		TotalObservations:    len(r.points.Observations),
		TotalSegments:        total,
		SegmentsWithMatches:  r.matches,
		CrashInvolvementRate: involvement,
		HotSpots:             r.crashStats.HotSpots,
		ColdSpots:            r.crashStats.ColdSpots,
		TotalFatalities:      r.fatalities,
		Breakdown:            domain.BuildBreakdown(r.working, r.params.fatalities()),
	}
}

// outcome is the runs_total label for a failed run.
func outcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return domain.Classify(err).String() + "_error"
}
