package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

const snapshotVersion = 1

type snapshotPattern struct {
	ID      string                      `msgpack:"id"`
	Samples []pattern.Document          `msgpack:"samples"`
	Labels  map[int]pattern.LabelsGroup `msgpack:"labels"`
	Fix     *pattern.Document           `msgpack:"fix,omitempty"`
}

type snapshot struct {
	Version     int               `msgpack:"version"`
	Fingerprint string            `msgpack:"fingerprint"`
	Patterns    []snapshotPattern `msgpack:"patterns"`
}

// Save writes the repository to w using msgpack.
func (r *Repository) Save(w io.Writer) error {
	s := snapshot{
		Version:     snapshotVersion,
		Fingerprint: r.fingerprint,
		Patterns:    make([]snapshotPattern, 0, len(r.patterns)),
	}
	for _, p := range r.patterns {
		sp := snapshotPattern{ID: p.ID, Labels: p.Graph.LabelGroups()}
		for _, g := range p.Samples {
			sp.Samples = append(sp.Samples, g.Document())
		}
		if p.Fix != nil {
			d := p.Fix.Document()
			sp.Fix = &d
		}
		s.Patterns = append(s.Patterns, sp)
	}
	return msgpack.NewEncoder(w).Encode(&s)
}

// Read restores a repository written by Save.
func Read(rd io.Reader) (*Repository, error) {
	var s snapshot
	if err := msgpack.NewDecoder(rd).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}

	patterns := make([]*pattern.Pattern, 0, len(s.Patterns))
	for _, sp := range s.Patterns {
		samples := make([]*pattern.Graph, 0, len(sp.Samples))
		for _, d := range sp.Samples {
			g, err := pattern.FromDocument(d)
			if err != nil {
				return nil, fmt.Errorf("snapshot pattern %s: %w", sp.ID, err)
			}
			samples = append(samples, g)
		}
		var fix *pattern.Graph
		if sp.Fix != nil {
			g, err := pattern.FromDocument(*sp.Fix)
			if err != nil {
				return nil, fmt.Errorf("snapshot pattern %s: %w", sp.ID, err)
			}
			fix = g
		}
		p, err := pattern.New(sp.ID, samples, sp.Labels, fix)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		patterns = append(patterns, p)
	}

	r, err := New(patterns)
	if err != nil {
		return nil, err
	}
	r.fingerprint = s.Fingerprint
	return r, nil
}

// SaveSnapshot writes the repository to path, creating parent directories.
func (r *Repository) SaveSnapshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := r.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadSnapshot reads a repository from a snapshot file.
func LoadSnapshot(path string) (*Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
