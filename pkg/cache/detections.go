package cache

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
)

// Matches maps pattern ids to the mapping found in one function.
type Matches map[string]isomorph.Mapping

type detectionsHeader struct {
	Scope string `msgpack:"scope"`
}

// Detections caches detection results per function. Entries are only valid
// for the scope they were computed in, typically a pattern repository
// fingerprint plus the build options.
type Detections struct {
	*LRU[Matches]
	scope string
}

// NewDetections creates an empty detection cache for scope.
func NewDetections(scope string, maxSize int) *Detections {
	return &Detections{LRU: New(Options[Matches]{MaxSize: maxSize}), scope: scope}
}

// Key derives the cache key of a function from its source text.
func Key(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Scope returns the scope the cache was created for.
func (d *Detections) Scope() string { return d.scope }

// SaveFile writes the scope header followed by the entries.
func (d *Detections) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	w := bufio.NewWriter(f)
	err = msgpack.NewEncoder(w).Encode(detectionsHeader{Scope: d.scope})
	if err == nil {
		err = d.Save(w)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile restores entries written by SaveFile. It reports whether the
// entries were used: a missing file or one written for another scope
// leaves the cache empty.
func (d *Detections) LoadFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var h detectionsHeader
	if err := msgpack.NewDecoder(r).Decode(&h); err != nil {
		return false, fmt.Errorf("failed to decode cache header: %w", err)
	}
	if h.Scope != d.scope {
		return false, nil
	}
	if err := d.Load(r); err != nil {
		return false, err
	}
	return true, nil
}
