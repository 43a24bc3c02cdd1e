package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

const (
	// LabelsFile is the sidecar holding the labels groups of sample 0.
	LabelsFile = "labels.json"
	// FixFile holds the graph of the code after the change.
	FixFile = "fix.dot"
)

// ErrNotPattern is returned for directories without a sample_0.dot.
var ErrNotPattern = errors.New("not a pattern directory")

// SampleFile returns the file name of the i-th sample.
func SampleFile(i int) string {
	return fmt.Sprintf("sample_%d.dot", i)
}

// WritePattern writes p into root/<p.ID>, replacing files of the same names.
func WritePattern(root string, p *pattern.Pattern) (string, error) {
	dir := filepath.Join(root, p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	for i, s := range p.Samples {
		g := s
		if i == 0 {
			g = p.Graph
		}
		if err := writeGraph(filepath.Join(dir, SampleFile(i)), g); err != nil {
			return "", err
		}
	}
	if p.Fix != nil {
		if err := writeGraph(filepath.Join(dir, FixFile), p.Fix); err != nil {
			return "", err
		}
	}

	groups := make(map[string]pattern.LabelsGroup)
	for id, lg := range p.Graph.LabelGroups() {
		groups[strconv.Itoa(id)] = lg
	}
	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding labels of %s: %w", p.ID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, LabelsFile), append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing labels of %s: %w", p.ID, err)
	}
	return dir, nil
}

func writeGraph(path string, g *pattern.Graph) error {
	data, err := MarshalGraph(g)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadPattern loads the pattern stored in dir. The pattern id is the
// directory name.
func ReadPattern(dir string) (*pattern.Pattern, error) {
	id := filepath.Base(dir)

	var samples []*pattern.Graph
	for i := 0; ; i++ {
		g, err := readGraph(filepath.Join(dir, SampleFile(i)))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", id, err)
		}
		samples = append(samples, g)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotPattern)
	}

	fix, err := readGraph(filepath.Join(dir, FixFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		fix = nil
	case err != nil:
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}

	groups, err := readLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}
	return pattern.New(id, samples, groups, fix)
}

func readGraph(path string) (*pattern.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := UnmarshalGraph(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return g, nil
}

func readLabels(path string) (map[int]pattern.LabelsGroup, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]pattern.LabelsGroup
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", LabelsFile, err)
	}
	groups := make(map[int]pattern.LabelsGroup, len(raw))
	for key, lg := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%s: vertex id %q: %w", LabelsFile, key, err)
		}
		groups[id] = lg
	}
	return groups, nil
}

// ReadAll loads every pattern directory directly under root, ordered by id.
// Subdirectories that are not patterns are ignored.
func ReadAll(root string) ([]*pattern.Pattern, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var patterns []*pattern.Pattern
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := ReadPattern(filepath.Join(root, e.Name()))
		if errors.Is(err, ErrNotPattern) {
			continue
		}
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
