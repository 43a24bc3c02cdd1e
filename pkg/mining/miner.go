package mining

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/pkg/flowgraph"
	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

var tracer = otel.Tracer("github.com/l3aro/go-pattern-miner/pkg/mining")

const (
	// DefaultMinOccurrences is the smallest group that becomes a pattern.
	DefaultMinOccurrences = 2
	// DefaultMaxMappings bounds the mappings enumerated per occurrence.
	DefaultMaxMappings = 64

	beforeSuffix = ".before.py"
	afterSuffix  = ".after.py"
)

// Example is one code change: the function before it and, optionally, after.
type Example struct {
	Name   string
	Before []byte
	After  []byte
}

// Miner groups example fragments into patterns.
type Miner struct {
	minOccurrences int
	maxMappings    int
	logger         log.Logger
}

// Option configures a Miner.
type Option func(*Miner)

// WithMinOccurrences sets how many examples a group needs to become a pattern.
func WithMinOccurrences(n int) Option {
	return func(m *Miner) { m.minOccurrences = n }
}

// WithMaxMappings sets the enumeration bound used while generalizing.
func WithMaxMappings(n int) Option {
	return func(m *Miner) { m.maxMappings = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Miner) { m.logger = l }
}

// NewMiner creates a miner.
func NewMiner(opts ...Option) *Miner {
	m := &Miner{
		minOccurrences: DefaultMinOccurrences,
		maxMappings:    DefaultMaxMappings,
		logger:         log.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.minOccurrences < 1 {
		m.minOccurrences = 1
	}
	if m.maxMappings < 1 {
		m.maxMappings = 1
	}
	return m
}

type sample struct {
	name  string
	graph *pattern.Graph
	fix   *pattern.Graph
}

type group struct {
	members []sample
}

// Mine builds every example, groups the fragments by super-weak isomorphism
// and generalizes each large enough group into a pattern. Examples that fail
// to build are logged and skipped.
func (m *Miner) Mine(ctx context.Context, examples []Example) ([]*pattern.Pattern, error) {
	ctx, span := tracer.Start(ctx, "Miner.Mine")
	defer span.End()
	span.SetAttributes(attribute.Int("examples", len(examples)))

	matcher := isomorph.SuperWeakMatcher()
	var groups []*group
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context cancelled")
			return nil, err
		}
		s, err := m.build(ctx, ex)
		if err != nil {
			m.logger.Warn("skipping example", "example", ex.Name, "error", err)
			continue
		}
		joined := false
		for _, g := range groups {
			if _, ok := matcher.Isomorphic(g.members[0].graph, s.graph); ok {
				g.members = append(g.members, s)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, &group{members: []sample{s}})
		}
	}

	var patterns []*pattern.Pattern
	used := make(map[string]bool)
	for _, g := range groups {
		if len(g.members) < m.minOccurrences {
			m.logger.Debug("group below threshold", "representative", g.members[0].name, "size", len(g.members))
			continue
		}
		p, err := m.generalize(g, used)
		if err != nil {
			m.logger.Warn("skipping group", "representative", g.members[0].name, "error", err)
			continue
		}
		m.logger.Info("mined pattern", "id", p.ID, "samples", len(p.Samples))
		patterns = append(patterns, p)
	}

	span.SetAttributes(
		attribute.Int("groups", len(groups)),
		attribute.Int("patterns", len(patterns)),
	)
	return patterns, nil
}

func (m *Miner) build(ctx context.Context, ex Example) (sample, error) {
	before, err := BuildExample(ctx, ex.Before, pattern.PartBefore, m.logger)
	if err != nil {
		return sample{}, fmt.Errorf("before: %w", err)
	}
	s := sample{name: ex.Name, graph: before}
	if len(ex.After) > 0 {
		after, err := BuildExample(ctx, ex.After, pattern.PartAfter, m.logger)
		if err != nil {
			return sample{}, fmt.Errorf("after: %w", err)
		}
		s.fix = after
	}
	return s, nil
}

func (m *Miner) generalize(g *group, used map[string]bool) (*pattern.Pattern, error) {
	rep := g.members[0]
	samples := make([]*pattern.Graph, 0, len(g.members))
	for _, s := range g.members {
		samples = append(samples, s.graph)
	}
	groups, err := Generalize(rep.graph, samples[1:], m.maxMappings)
	if err != nil {
		return nil, err
	}
	id := uniqueID(PatternID(rep.graph), used)
	return pattern.New(id, samples, groups, rep.fix)
}

// BuildExample parses src, builds its first function and converts it into a
// pattern graph without the entry vertex.
func BuildExample(ctx context.Context, src []byte, part pattern.Part, logger log.Logger) (*pattern.Graph, error) {
	tree, err := syntax.ParsePython(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	fn, err := tree.FirstFunction()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	fg, err := flowgraph.Build(fn.Node, flowgraph.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return pattern.FromFlowGraph(fg, pattern.DropEntry(), pattern.AsPart(part))
}

// PatternID derives an identifier from the operation and control labels of
// g in vertex order.
func PatternID(g *pattern.Graph) string {
	var parts []string
	seen := make(map[string]bool)
	for _, v := range g.Vertices() {
		if v.Kind != pattern.KindOperation && v.Kind != pattern.KindControl {
			continue
		}
		word := sanitize(v.Label)
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		parts = append(parts, word)
	}
	if len(parts) == 0 {
		return "pattern"
	}
	return strings.Join(parts, "_")
}

func sanitize(label string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '_' || r == ' ':
			sb.WriteByte('_')
		}
	}
	return strings.Trim(sb.String(), "_")
}

func uniqueID(id string, used map[string]bool) string {
	candidate := id
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	used[candidate] = true
	return candidate
}

// LoadExamples reads NAME.before.py files, with their optional NAME.after.py
// counterparts, from dir in name order.
func LoadExamples(dir string) ([]Example, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading examples: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), beforeSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), beforeSuffix))
	}
	sort.Strings(names)

	examples := make([]Example, 0, len(names))
	for _, name := range names {
		before, err := os.ReadFile(filepath.Join(dir, name+beforeSuffix))
		if err != nil {
			return nil, fmt.Errorf("reading example %s: %w", name, err)
		}
		ex := Example{Name: name, Before: before}
		after, err := os.ReadFile(filepath.Join(dir, name+afterSuffix))
		switch {
		case err == nil:
			ex.After = after
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading example %s: %w", name, err)
		}
		examples = append(examples, ex)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no *%s examples in %s", beforeSuffix, dir)
	}
	return examples, nil
}
