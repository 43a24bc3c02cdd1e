package scanner

import (
	"bufio"
	"io"
	"path"
	"strings"
)

// Rule is one line of an ignore file, using gitignore syntax.
type Rule struct {
	text     string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseRule parses a single ignore line. It reports false for blank lines
// and comments.
func ParseRule(line string) (Rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false
	}

	r := Rule{text: line}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	// A slash anywhere but the end ties the rule to the ignore file's directory.
	if strings.Contains(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return Rule{}, false
	}
	r.segments = strings.Split(line, "/")
	return r, true
}

// ParseRules reads every rule from rd.
func ParseRules(rd io.Reader) ([]Rule, error) {
	var rules []Rule
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		if r, ok := ParseRule(sc.Text()); ok {
			rules = append(rules, r)
		}
	}
	return rules, sc.Err()
}

// Negated reports whether the rule re-includes what it matches.
func (r Rule) Negated() bool { return r.negate }

func (r Rule) String() string { return r.text }

// Match reports whether rel, a slash separated path relative to the ignore
// file's directory, or one of its parent directories matches the rule.
func (r Rule) Match(rel string, isDir bool) bool {
	parts := strings.Split(strings.Trim(rel, "/"), "/")
	for n := 1; n <= len(parts); n++ {
		dir := n < len(parts) || isDir
		if r.dirOnly && !dir {
			continue
		}
		if r.matchPrefix(parts[:n]) {
			return true
		}
	}
	return false
}

func (r Rule) matchPrefix(parts []string) bool {
	if r.anchored {
		return globSegments(r.segments, parts)
	}
	for i := range parts {
		if globSegments(r.segments, parts[i:]) {
			return true
		}
	}
	return false
}

func globSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if globSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], parts[0]); err != nil || !ok {
		return false
	}
	return globSegments(pattern[1:], parts[1:])
}
