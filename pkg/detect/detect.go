// Package detect runs a pattern repository over the Python files of a
// project. Files are processed concurrently; a file or function that cannot
// be analysed is logged and skipped.
package detect

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/internal/scanner"
	"github.com/l3aro/go-pattern-miner/pkg/cache"
	"github.com/l3aro/go-pattern-miner/pkg/flowgraph"
	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
	"github.com/l3aro/go-pattern-miner/pkg/repository"
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

var tracer = otel.Tracer("github.com/l3aro/go-pattern-miner/pkg/detect")

// DefaultWorkers is the number of files analysed at once.
const DefaultWorkers = 4

// Finding is one pattern occurrence.
type Finding struct {
	File     string           `json:"file"`
	Function string           `json:"function"`
	Line     int              `json:"line"`
	Pattern  string           `json:"pattern"`
	Mapping  isomorph.Mapping `json:"mapping"`
}

// Report summarises a run.
type Report struct {
	Findings  []Finding `json:"findings"`
	Files     int       `json:"files"`
	Functions int       `json:"functions"`
	Skipped   int       `json:"skipped"`
	CacheHits int       `json:"cache_hits"`
}

// Detector matches a repository against source files.
type Detector struct {
	repo        *repository.Repository
	cache       *cache.Detections
	workers     int
	skipClosure bool
	logger      log.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithWorkers bounds the number of files analysed concurrently.
func WithWorkers(n int) Option {
	return func(d *Detector) { d.workers = n }
}

// WithCache reuses results for functions whose source has not changed.
func WithCache(c *cache.Detections) Option {
	return func(d *Detector) { d.cache = c }
}

// WithoutClosure builds targets without the transitive closure pass.
func WithoutClosure() Option {
	return func(d *Detector) { d.skipClosure = true }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// New creates a Detector for repo.
func New(repo *repository.Repository, opts ...Option) *Detector {
	d := &Detector{repo: repo, workers: DefaultWorkers, logger: log.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	return d
}

type fileResult struct {
	findings  []Finding
	functions int
	skipped   int
	hits      int
}

// Run analyses every file. Findings are ordered by file, then by function
// position, then by pattern id. Only context cancellation aborts the run.
func (d *Detector) Run(ctx context.Context, files []scanner.File) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Detector.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("files", len(files)),
		attribute.Int("patterns", d.repo.Len()),
		attribute.Int("workers", d.workers),
	)

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := d.file(gctx, f)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Warn("skipping file", "file", f.Path, "error", err)
				results[i] = fileResult{skipped: 1}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context cancelled")
		return nil, err
	}

	report := &Report{Files: len(files)}
	for _, res := range results {
		report.Findings = append(report.Findings, res.findings...)
		report.Functions += res.functions
		report.Skipped += res.skipped
		report.CacheHits += res.hits
	}
	span.SetAttributes(
		attribute.Int("functions", report.Functions),
		attribute.Int("findings", len(report.Findings)),
	)
	return report, nil
}

func (d *Detector) file(ctx context.Context, f scanner.File) (fileResult, error) {
	var res fileResult
	tree, err := syntax.ParsePythonFile(ctx, f.FullPath)
	if err != nil {
		return res, err
	}
	defer tree.Close()

	for _, fn := range tree.Functions() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		matches, hit, err := d.function(ctx, fn)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			d.logger.Debug("skipping function", "file", f.Path, "function", fn.Qualified, "error", err)
			res.skipped++
			continue
		}
		res.functions++
		if hit {
			res.hits++
		}
		ids := make([]string, 0, len(matches))
		for id := range matches {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			res.findings = append(res.findings, Finding{
				File:     f.Path,
				Function: fn.Qualified,
				Line:     fn.Line,
				Pattern:  id,
				Mapping:  matches[id],
			})
		}
	}
	return res, nil
}

// function returns the matches of one function and whether they came from
// the cache.
func (d *Detector) function(ctx context.Context, fn syntax.Function) (cache.Matches, bool, error) {
	var key string
	if d.cache != nil {
		key = cache.Key([]byte(fn.Node.Text()))
		if m, ok := d.cache.Get(key); ok {
			return m, true, nil
		}
	}

	opts := []flowgraph.Option{flowgraph.WithLogger(d.logger)}
	if d.skipClosure {
		opts = append(opts, flowgraph.WithoutClosure())
	}
	fg, err := flowgraph.Build(fn.Node, opts...)
	if err != nil {
		return nil, false, err
	}
	target, err := pattern.FromFlowGraph(fg, pattern.DropEntry())
	if err != nil {
		return nil, false, err
	}
	found, err := d.repo.Detect(ctx, target)
	if err != nil {
		return nil, false, err
	}

	matches := cache.Matches(found)
	if d.cache != nil {
		d.cache.Set(key, matches)
	}
	return matches, false, nil
}
