// Package repository holds the mined patterns used for detection. A
// Repository is built once and never modified, so it can be shared between
// goroutines without locking.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

var tracer = otel.Tracer("github.com/l3aro/go-pattern-miner/pkg/repository")

// Repository is an immutable set of patterns keyed by id.
type Repository struct {
	patterns    []*pattern.Pattern
	byID        map[string]*pattern.Pattern
	fingerprint string
	matcher     *isomorph.Matcher
}

// New creates a repository from patterns. Ids must be unique.
func New(patterns []*pattern.Pattern) (*Repository, error) {
	r := &Repository{
		byID:    make(map[string]*pattern.Pattern, len(patterns)),
		matcher: isomorph.WeakMatcher(),
	}
	for _, p := range patterns {
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		r.byID[p.ID] = p
		r.patterns = append(r.patterns, p)
	}
	sort.Slice(r.patterns, func(i, j int) bool { return r.patterns[i].ID < r.patterns[j].ID })
	return r, nil
}

type loadConfig struct {
	snapshot string
	logger   log.Logger
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// WithSnapshot makes Load use, and refresh, a msgpack snapshot at path.
func WithSnapshot(path string) LoadOption {
	return func(c *loadConfig) { c.snapshot = path }
}

// WithLogger sets the logger used while loading.
func WithLogger(l log.Logger) LoadOption {
	return func(c *loadConfig) { c.logger = l }
}

// Load reads every pattern directory under dir. With a snapshot configured,
// the snapshot is used when its fingerprint matches the directory contents
// and rewritten otherwise.
func Load(dir string, opts ...LoadOption) (*Repository, error) {
	cfg := loadConfig{logger: log.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	fp, err := Fingerprint(dir)
	if err != nil {
		return nil, err
	}

	if cfg.snapshot != "" {
		r, err := LoadSnapshot(cfg.snapshot)
		switch {
		case err == nil && r.fingerprint == fp:
			cfg.logger.Debug("using pattern snapshot", "path", cfg.snapshot, "patterns", r.Len())
			return r, nil
		case err == nil:
			cfg.logger.Debug("pattern snapshot is stale", "path", cfg.snapshot)
		case !errors.Is(err, fs.ErrNotExist):
			cfg.logger.Warn("ignoring pattern snapshot", "path", cfg.snapshot, "error", err)
		}
	}

	patterns, err := artifact.ReadAll(dir)
	if err != nil {
		return nil, err
	}
	r, err := New(patterns)
	if err != nil {
		return nil, err
	}
	r.fingerprint = fp

	if cfg.snapshot != "" {
		if err := r.SaveSnapshot(cfg.snapshot); err != nil {
			cfg.logger.Warn("could not write pattern snapshot", "path", cfg.snapshot, "error", err)
		}
	}
	return r, nil
}

// Len returns the number of patterns.
func (r *Repository) Len() int { return len(r.patterns) }

// Patterns returns the patterns ordered by id.
func (r *Repository) Patterns() []*pattern.Pattern {
	return append([]*pattern.Pattern(nil), r.patterns...)
}

// Pattern returns the pattern with the given id.
func (r *Repository) Pattern(id string) (*pattern.Pattern, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Fingerprint identifies the pattern files the repository was loaded from.
// It is empty for repositories built with New.
func (r *Repository) Fingerprint() string { return r.fingerprint }

// Detect matches every pattern against target with weak isomorphism and
// returns, per matching pattern id, the mapping from pattern vertices to
// target vertices.
func (r *Repository) Detect(ctx context.Context, target *pattern.Graph) (map[string]isomorph.Mapping, error) {
	ctx, span := tracer.Start(ctx, "Repository.Detect")
	defer span.End()
	span.SetAttributes(
		attribute.String("target", target.Name()),
		attribute.Int("target.vertices", target.Len()),
		attribute.Int("patterns", len(r.patterns)),
	)

	found := make(map[string]isomorph.Mapping)
	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context cancelled")
			return nil, err
		}
		if p.Graph.Len() > target.Len() {
			continue
		}
		if m, ok := r.matcher.Find(p.Graph, target); ok {
			found[p.ID] = m
		}
	}
	span.SetAttributes(attribute.Int("matches", len(found)))
	return found, nil
}

// Fingerprint hashes the names and contents of every file under dir.
func Fingerprint(dir string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", dir, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
