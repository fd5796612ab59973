// Package bundle runs the build stages in order: graph, transform, split and
// emit. Each stage consumes the previous stage's output and fails the whole
// build on its first error.
package bundle

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rnbundle/internal/chunk"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/emit"
	"github.com/wolfeidau/rnbundle/internal/graph"
	"github.com/wolfeidau/rnbundle/internal/logger"
	"github.com/wolfeidau/rnbundle/internal/telemetry"
	"github.com/wolfeidau/rnbundle/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// StageTiming records how long a stage took.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Plan is the outcome of the stages that do not write output.
type Plan struct {
	Graph       *graph.Graph
	Partition   *chunk.Partition
	Transformed int
	Stages      []StageTiming
}

// Result describes a completed build.
type Result struct {
	Plan
	Output *emit.Result
}

type run struct {
	cfg     config.Config
	metrics *telemetry.Metrics
	stages  []StageTiming
}

// PlanBuild loads the graph, transforms it and splits it into chunks without
// emitting anything.
func PlanBuild(ctx context.Context, cfg config.Config) (*Plan, error) {
	r := newRun(cfg)

	ctx, span := telemetry.Tracer().Start(ctx, "rnbundle.plan")
	defer span.End()

	p, err := r.plan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return p, nil
}

// Build runs every stage and publishes the output. Either the complete output
// is published or the output path is left untouched.
func Build(ctx context.Context, cfg config.Config) (*Result, error) {
	started := time.Now()
	r := newRun(cfg)

	ctx, span := telemetry.Tracer().Start(ctx, "rnbundle.build")
	defer span.End()

	res, err := r.build(ctx)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.metrics.BuildsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
	r.metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Int("modules", res.Graph.Len()).
		Int("transformed", res.Transformed).
		Int("chunks", len(res.Partition.Chunks)).
		Int64("bytes", res.Output.Bytes).
		Str("dir", res.Output.Dir).
		Dur("duration", time.Since(started)).
		Msg("Build complete")

	return res, nil
}

func newRun(cfg config.Config) *run {
	return &run{cfg: cfg, metrics: telemetry.GetMetrics()}
}

func (r *run) build(ctx context.Context) (*Result, error) {
	// the output path may have been overridden since the config was loaded
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	// the emitter parses the HTML template, so a broken template fails first
	emitter, err := emit.New(r.cfg.Output, r.cfg.HTML, r.cfg.Workers)
	if err != nil {
		return nil, err
	}

	p, err := r.plan(ctx)
	if err != nil {
		return nil, err
	}

	var out *emit.Result
	err = r.stage(ctx, "emit", func(ctx context.Context) error {
		var err error
		out, err = emitter.Emit(ctx, p.Graph, p.Partition)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, c := range p.Partition.Chunks {
		r.metrics.ChunksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(c.Kind))))
	}
	r.metrics.BytesEmitted.Add(ctx, out.Bytes)
	r.metrics.BytesCompressed.Add(ctx, out.CompressedBytes)

	p.Stages = r.stages
	return &Result{Plan: *p, Output: out}, nil
}

func (r *run) plan(ctx context.Context) (*Plan, error) {
	var g *graph.Graph
	err := r.stage(ctx, "graph", func(ctx context.Context) error {
		b, err := graph.NewBuilder(r.cfg.Resolution, r.cfg.Workers)
		if err != nil {
			return err
		}
		g, err = b.Build(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.ModulesTotal.Add(ctx, int64(g.Len()))

	var pipeline *transform.Pipeline
	err = r.stage(ctx, "transform", func(ctx context.Context) error {
		var err error
		pipeline, err = transform.NewPipelineFromConfig(r.cfg.Transform, r.cfg.Output.Root, r.cfg.Workers)
		if err != nil {
			return err
		}
		g, err = pipeline.Run(ctx, g)
		return err
	})
	if err != nil {
		return nil, err
	}

	// modules that only had their module syntax rewritten are not counted
	transformed := 0
	for _, m := range g.Modules() {
		if m.IsTransformed() && pipeline.Applies(m.Path) {
			transformed++
		}
	}
	r.metrics.ModulesTransformedTotal.Add(ctx, int64(transformed))

	var partition *chunk.Partition
	err = r.stage(ctx, "split", func(ctx context.Context) error {
		var err error
		partition, err = chunk.NewSplitter(r.cfg.Policy).Split(ctx, g)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Plan{
		Graph:       g,
		Partition:   partition,
		Transformed: transformed,
		Stages:      r.stages,
	}, nil
}

// stage runs one stage inside a span, records its duration and counts its
// failure.
func (r *run) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "rnbundle.stage."+name)
	defer span.End()

	started := time.Now()
	err := logger.Stage(ctx, name, fn)
	elapsed := time.Since(started)

	r.stages = append(r.stages, StageTiming{Name: name, Duration: elapsed})

	attrs := metric.WithAttributes(attribute.String("stage", name))
	r.metrics.StageDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.StageErrorsTotal.Add(ctx, 1, attrs)
		r.metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		return err
	}

	return nil
}
