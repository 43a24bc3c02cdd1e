package pattern

import (
	"sort"
	"strings"
)

// Mode is the matching policy of a generalized variable.
type Mode string

const (
	// ModeLongestCommonSuffix matches labels ending with the shared dotted suffix.
	ModeLongestCommonSuffix Mode = "LONGEST_COMMON_SUFFIX"
	// ModeValuableOriginalLabel matches only the observed labels.
	ModeValuableOriginalLabel Mode = "VALUABLE_ORIGINAL_LABEL"
	// ModeNothing matches any label.
	ModeNothing Mode = "NOTHING"
)

// LabelsGroup is the stored matching policy of one pattern variable, with the
// labels it was derived from.
type LabelsGroup struct {
	Mode   Mode     `json:"mode" msgpack:"mode"`
	Labels []string `json:"labels" msgpack:"labels"`
	Suffix string   `json:"suffix,omitempty" msgpack:"suffix,omitempty"`
}

// NewLabelsGroup derives the policy for a set of observed labels: a shared
// dotted suffix if there is one, the label set itself if every label is a
// dotted path, nothing otherwise.
func NewLabelsGroup(labels []string) LabelsGroup {
	set := uniqueSorted(labels)
	if suffix := CommonSuffix(set); suffix != "" {
		return LabelsGroup{Mode: ModeLongestCommonSuffix, Labels: set, Suffix: suffix}
	}
	dotted := len(set) > 0
	for _, l := range set {
		if !strings.Contains(l, ".") {
			dotted = false
			break
		}
	}
	if dotted {
		return LabelsGroup{Mode: ModeValuableOriginalLabel, Labels: set}
	}
	return LabelsGroup{Mode: ModeNothing, Labels: set}
}

// Matches reports whether a target label satisfies the policy.
func (g LabelsGroup) Matches(label string) bool {
	switch g.Mode {
	case ModeLongestCommonSuffix:
		return label == g.Suffix || strings.HasSuffix(label, "."+g.Suffix)
	case ModeValuableOriginalLabel:
		for _, l := range g.Labels {
			if l == label {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (g LabelsGroup) clone() LabelsGroup {
	g.Labels = append([]string(nil), g.Labels...)
	return g
}

// CommonSuffix returns the longest run of trailing dot-separated components
// shared by every label, or "" when there is none.
func CommonSuffix(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	common := strings.Split(labels[0], ".")
	for _, l := range labels[1:] {
		parts := strings.Split(l, ".")
		n := 0
		for n < len(common) && n < len(parts) && common[len(common)-1-n] == parts[len(parts)-1-n] {
			n++
		}
		common = common[len(common)-n:]
		if len(common) == 0 {
			return ""
		}
	}
	return strings.Join(common, ".")
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
