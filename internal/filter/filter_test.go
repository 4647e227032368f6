package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javi11/pkgexpand/internal/errors"
)

func TestNewPatternSet_InvalidPattern(t *testing.T) {
	_, err := NewPatternSet([]string{"a[b"}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindUsage, errors.KindOf(err))
}

func TestShouldExtract_NoPatterns(t *testing.T) {
	ps, err := NewPatternSet(nil, nil)
	require.NoError(t, err)
	assert.True(t, ps.Empty())

	for _, p := range []string{"Distribution", "Payload/etc/conf", "Scripts/postinstall"} {
		assert.True(t, ps.ShouldExtract(p), p)
	}
}

func TestShouldExtract_Includes(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		path     string
		want     bool
	}{
		{name: "direct match", includes: []string{"Scripts"}, path: "Scripts", want: true},
		{name: "descendant of include", includes: []string{"Scripts"}, path: "Scripts/postinstall", want: true},
		{name: "ancestor of include", includes: []string{"Scripts/postinstall"}, path: "Scripts", want: true},
		{name: "sibling rejected", includes: []string{"Scripts"}, path: "Payload", want: false},
		{name: "glob include", includes: []string{"*.plist"}, path: "Info.plist", want: true},
		{name: "glob non-match", includes: []string{"*.plist"}, path: "Payload", want: false},
		{name: "nested include reachable through glob segment", includes: []string{"*/etc/conf"}, path: "Payload", want: true},
		{name: "deep descendant", includes: []string{"Payload"}, path: "Payload/usr/bin/tool", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewPatternSet(tt.includes, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ps.ShouldExtract(tt.path))
		})
	}
}

func TestShouldExtract_Excludes(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		path     string
		want     bool
	}{
		{name: "exclude direct", excludes: []string{"Scripts"}, path: "Scripts", want: false},
		{name: "exclude takes subtree", excludes: []string{"Scripts"}, path: "Scripts/postinstall", want: false},
		{name: "exclude glob", excludes: []string{"*.plist"}, path: "Info.plist", want: false},
		{name: "unrelated survives", excludes: []string{"Scripts"}, path: "Payload", want: true},
		{name: "exclude beats include", includes: []string{"Scripts"}, excludes: []string{"Scripts"}, path: "Scripts", want: false},
		{name: "exclude beats included descendant", includes: []string{"Scripts"}, excludes: []string{"Scripts/postinstall"}, path: "Scripts/postinstall", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewPatternSet(tt.includes, tt.excludes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ps.ShouldExtract(tt.path))
		})
	}
}

func TestShouldExtract_LogicalPathsAcrossNesting(t *testing.T) {
	// A filter given once at the root applies to paths inside nested
	// containers through their root-relative logical path.
	ps, err := NewPatternSet([]string{"Payload/etc"}, nil)
	require.NoError(t, err)

	assert.True(t, ps.ShouldExtract("Payload"))          // descend into the marker
	assert.True(t, ps.ShouldExtract("Payload/etc"))      // the include itself
	assert.True(t, ps.ShouldExtract("Payload/etc/conf")) // below the include
	assert.False(t, ps.ShouldExtract("Payload2"))
	assert.False(t, ps.ShouldExtract("Scripts/postinstall"))
}
