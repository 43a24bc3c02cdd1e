// Package scanner finds the Python sources of a project. It honours
// .gpmignore files, which use gitignore syntax and apply to the directory
// they are found in and everything below it.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-pattern-miner/internal/log"
)

// File is a source file found by the scanner.
type File struct {
	Path     string // Relative to the scanned root, slash separated
	FullPath string // Absolute path
	Size     int64
}

// Options configures the scanner.
type Options struct {
	SkipHidden      bool     // Skip files and directories starting with .
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of per-directory ignore files
	Extensions      []string // File extensions to keep; empty keeps everything
	Logger          log.Logger
}

// DefaultOptions returns options suited to Python projects.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".gpmignore",
		Extensions:     []string{".py"},
		DefaultExcludes: []string{
			"__pycache__",
			".git",
			".hg",
			".svn",
			".venv",
			"venv",
			".tox",
			".nox",
			".mypy_cache",
			".pytest_cache",
			"site-packages",
			"node_modules",
			"build",
			"dist",
		},
	}
}

// Scanner walks a directory tree.
type Scanner struct {
	opts   Options
	logger log.Logger
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Scanner{opts: opts, logger: logger}
}

// Scan returns the matching files under root in lexical order.
// Unreadable entries are logged and skipped.
func (s *Scanner) Scan(root string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		resolvedRoot = absRoot
	}

	rules := make(map[string][]Rule)
	var files []File

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() && p != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == "." {
			return s.loadRules(rules, rel, p)
		}

		name := d.Name()
		if d.IsDir() {
			if (s.opts.SkipHidden && isHidden(name)) || s.isDefaultExcluded(name) || ignored(rules, rel, true) {
				return filepath.SkipDir
			}
			return s.loadRules(rules, rel, p)
		}

		if s.opts.SkipHidden && isHidden(name) {
			return nil
		}
		if !s.wanted(name) || ignored(rules, rel, false) {
			return nil
		}

		fi, ok := s.regular(resolvedRoot, p, d)
		if !ok {
			return nil
		}
		files = append(files, File{Path: rel, FullPath: p, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// regular returns the file info of p, resolving symlinks when allowed.
func (s *Scanner) regular(root, p string, d fs.DirEntry) (fs.FileInfo, bool) {
	if d.Type()&fs.ModeSymlink == 0 {
		fi, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping file", "path", p, "error", err)
			return nil, false
		}
		return fi, fi.Mode().IsRegular()
	}
	if !s.opts.FollowSymlinks {
		return nil, false
	}

	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		s.logger.Debug("skipping broken symlink", "path", p)
		return nil, false
	}
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		s.logger.Debug("skipping symlink leaving root", "path", p, "target", target)
		return nil, false
	}
	fi, err := os.Stat(target)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, false
	}
	return fi, true
}

func (s *Scanner) loadRules(rules map[string][]Rule, rel, dir string) error {
	if s.opts.IgnoreFileName == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	parsed, err := ParseRules(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Join(rel, s.opts.IgnoreFileName), err)
	}
	if len(parsed) > 0 {
		rules[rel] = parsed
	}
	return nil
}

// ignored applies the rules of every ancestor of rel, outermost first. The
// last matching rule wins.
func ignored(rules map[string][]Rule, rel string, isDir bool) bool {
	result := false
	for _, base := range ancestors(rel) {
		sub := rel
		if base != "." {
			sub = strings.TrimPrefix(rel, base+"/")
		}
		for _, r := range rules[base] {
			if r.Match(sub, isDir) {
				result = !r.Negated()
			}
		}
	}
	return result
}

// ancestors returns ".", "a", "a/b" for "a/b/c".
func ancestors(rel string) []string {
	out := []string{"."}
	dir := path.Dir(rel)
	if dir == "." {
		return out
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

func (s *Scanner) wanted(name string) bool {
	if len(s.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range s.opts.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}
