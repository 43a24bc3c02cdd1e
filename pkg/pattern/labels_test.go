package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonSuffix(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"self.items", "other.items"}, "items"},
		{[]string{"a.b.c", "x.b.c"}, "b.c"},
		{[]string{"x", "y"}, ""},
		{[]string{"x", "x"}, "x"},
		{[]string{"os.path", "os.sep"}, ""},
		{[]string{"items", "self.items"}, "items"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommonSuffix(tt.labels), "%v", tt.labels)
	}
}

func TestNewLabelsGroup(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		mode   Mode
		suffix string
	}{
		{"shared suffix", []string{"self.items", "cls.items"}, ModeLongestCommonSuffix, "items"},
		{"same name", []string{"x", "x"}, ModeLongestCommonSuffix, "x"},
		{"dotted without suffix", []string{"os.path", "os.sep"}, ModeValuableOriginalLabel, ""},
		{"plain names", []string{"x", "y"}, ModeNothing, ""},
		{"mixed", []string{"x", "a.b"}, ModeNothing, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLabelsGroup(tt.labels)
			assert.Equal(t, tt.mode, g.Mode)
			assert.Equal(t, tt.suffix, g.Suffix)
			assert.Equal(t, uniqueSorted(tt.labels), g.Labels)
		})
	}
}

func TestLabelsGroupMatches(t *testing.T) {
	suffix := LabelsGroup{Mode: ModeLongestCommonSuffix, Suffix: "items"}
	assert.True(t, suffix.Matches("items"))
	assert.True(t, suffix.Matches("self.items"))
	assert.False(t, suffix.Matches("myitems"))
	assert.False(t, suffix.Matches("items.count"))

	valuable := LabelsGroup{Mode: ModeValuableOriginalLabel, Labels: []string{"os.path", "os.sep"}}
	assert.True(t, valuable.Matches("os.sep"))
	assert.False(t, valuable.Matches("os.name"))

	nothing := LabelsGroup{Mode: ModeNothing, Labels: []string{"x"}}
	assert.True(t, nothing.Matches("anything"))
}
