package extractor

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cavaliergopher/cpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/javi11/pkgexpand/internal/errors"
	"github.com/javi11/pkgexpand/internal/filter"
)

// buildPayloadCpio builds the archive a package payload carries: a cpio
// stream with "./"-prefixed entry names.
func buildPayloadCpio(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)

	require.NoError(t, w.WriteHeader(&cpio.Header{
		Name: "./etc",
		Mode: cpio.TypeDir | 0755,
	}))
	content := "nested file contents"
	require.NoError(t, w.WriteHeader(&cpio.Header{
		Name: "./etc/conf",
		Mode: cpio.TypeReg | 0644,
		Size: int64(len(content)),
	}))
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// buildPbzx wraps b in a single-chunk pbzx container after XZ-compressing
// it, the framing installer payloads use.
func buildPbzx(t *testing.T, b []byte) []byte {
	t.Helper()
	var chunk bytes.Buffer
	xw, err := xz.NewWriter(&chunk)
	require.NoError(t, err)
	_, err = xw.Write(b)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	var buf bytes.Buffer
	buf.WriteString("pbzx")
	writeUint64(&buf, 1<<24)
	writeUint64(&buf, 0)
	writeUint64(&buf, uint64(chunk.Len()))
	buf.Write(chunk.Bytes())
	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

type tarEntry struct {
	name     string
	typeflag byte
	linkname string
	content  []byte
}

func buildTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Typeflag: typeflag,
			Linkname: e.linkname,
			Mode:     0644,
			Size:     int64(len(e.content)),
		}))
		if len(e.content) > 0 {
			_, err := tw.Write(e.content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeTempFile(t *testing.T, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outer.pkg")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func noPatterns(t *testing.T) *filter.PatternSet {
	t.Helper()
	ps, err := filter.NewPatternSet(nil, nil)
	require.NoError(t, err)
	return ps
}

func TestExpandFull_PbzxPayload(t *testing.T) {
	payload := buildPbzx(t, buildPayloadCpio(t))
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "Distribution", content: []byte("<installer/>")},
		{name: "Payload", content: payload},
	}))
	outDir := t.TempDir()

	cwdBefore, err := os.Getwd()
	require.NoError(t, err)

	x := New(Options{ExpandNested: true})
	err = x.Expand(pkg, outDir, noPatterns(t), 0)
	require.NoError(t, err)

	// Nested entries land under the marker's own path.
	data, err := os.ReadFile(filepath.Join(outDir, "Payload", "etc", "conf"))
	require.NoError(t, err)
	assert.Equal(t, "nested file contents", string(data))

	data, err = os.ReadFile(filepath.Join(outDir, "Distribution"))
	require.NoError(t, err)
	assert.Equal(t, "<installer/>", string(data))

	// The orchestrator's location state is untouched by recursion.
	cwdAfter, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwdBefore, cwdAfter)
}

func TestExpand_FlatDoesNotRecurse(t *testing.T) {
	payload := buildPbzx(t, buildPayloadCpio(t))
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "Payload", content: payload},
	}))
	outDir := t.TempDir()

	x := New(Options{ExpandNested: false})
	require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 0))

	// The payload comes out as an opaque file, framing intact.
	data, err := os.ReadFile(filepath.Join(outDir, "Payload"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestExpandFull_StripComponents(t *testing.T) {
	payload := buildPbzx(t, buildPayloadCpio(t))

	t.Run("budget consumed reaching the marker", func(t *testing.T) {
		pkg := writeTempFile(t, buildTar(t, []tarEntry{
			{name: "sub/Payload", content: payload},
		}))
		outDir := t.TempDir()

		x := New(Options{ExpandNested: true})
		require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 1))

		// "sub" stripped; nested entries under the marker name.
		_, err := os.Stat(filepath.Join(outDir, "Payload", "etc", "conf"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(outDir, "sub"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("budget exceeds the marker depth", func(t *testing.T) {
		pkg := writeTempFile(t, buildTar(t, []tarEntry{
			{name: "sub/Payload", content: payload},
		}))
		outDir := t.TempDir()

		x := New(Options{ExpandNested: true})
		require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 2))

		// The marker path is fully consumed: nested entries extract
		// into the output root with no budget left over.
		_, err := os.Stat(filepath.Join(outDir, "etc", "conf"))
		assert.NoError(t, err)
	})
}

func TestExpand_StripComponentsSkipsShallowEntries(t *testing.T) {
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "top.txt", content: []byte("top")},
		{name: "a/b.txt", content: []byte("deep")},
	}))
	outDir := t.TempDir()

	x := New(Options{})
	require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 1))

	_, err := os.Stat(filepath.Join(outDir, "top.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(outDir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}

func TestExpand_PathSecurityIsFatal(t *testing.T) {
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "../evil", content: []byte("escape")},
	}))
	outDir := t.TempDir()

	x := New(Options{})
	err := x.Expand(pkg, outDir, noPatterns(t), 0)
	require.Error(t, err)
	assert.Equal(t, errors.KindPathSecurity, errors.KindOf(err))

	_, statErr := os.Stat(filepath.Join(filepath.Dir(outDir), "evil"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExpandFull_FiltersApplyInsideNesting(t *testing.T) {
	payload := buildPbzx(t, buildPayloadCpio(t))
	outer := buildTar(t, []tarEntry{
		{name: "Distribution", content: []byte("<installer/>")},
		{name: "Payload", content: payload},
	})

	t.Run("include reaches nested file", func(t *testing.T) {
		pkg := writeTempFile(t, outer)
		outDir := t.TempDir()
		ps, err := filter.NewPatternSet([]string{"Payload/etc"}, nil)
		require.NoError(t, err)

		x := New(Options{ExpandNested: true})
		require.NoError(t, x.Expand(pkg, outDir, ps, 0))

		_, err = os.Stat(filepath.Join(outDir, "Payload", "etc", "conf"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(outDir, "Distribution"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("excluded marker is not expanded", func(t *testing.T) {
		pkg := writeTempFile(t, outer)
		outDir := t.TempDir()
		ps, err := filter.NewPatternSet(nil, []string{"Payload"})
		require.NoError(t, err)

		x := New(Options{ExpandNested: true})
		require.NoError(t, x.Expand(pkg, outDir, ps, 0))

		_, err = os.Stat(filepath.Join(outDir, "Payload"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(outDir, "Distribution"))
		assert.NoError(t, err)
	})
}

func TestExpand_ForceSemantics(t *testing.T) {
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "file.txt", content: []byte("fresh")},
	}))
	outDir := t.TempDir()

	x := New(Options{})
	require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 0))

	// Second run without force fails before overwriting.
	err := x.Expand(pkg, outDir, noPatterns(t), 0)
	require.Error(t, err)
	assert.Equal(t, errors.KindResource, errors.KindOf(err))
	assert.Contains(t, err.Error(), "--force")

	// With force it overwrites.
	forced := New(Options{Write: WriteOptions{Force: true}})
	require.NoError(t, forced.Expand(pkg, outDir, noPatterns(t), 0))

	data, err := os.ReadFile(filepath.Join(outDir, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestExpand_HardlinkTargetStripping(t *testing.T) {
	pkg := writeTempFile(t, buildTar(t, []tarEntry{
		{name: "a/orig.txt", content: []byte("data")},
		{name: "a/copy.txt", typeflag: tar.TypeLink, linkname: "a/orig.txt"},
		{name: "a/bad.txt", typeflag: tar.TypeLink, linkname: "orig.txt"},
	}))
	outDir := t.TempDir()

	x := New(Options{})
	require.NoError(t, x.Expand(pkg, outDir, noPatterns(t), 1))

	data, err := os.ReadFile(filepath.Join(outDir, "copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	// The target of bad.txt cannot be stripped by the same count, so
	// the entry is skipped rather than linked inconsistently.
	_, err = os.Stat(filepath.Join(outDir, "bad.txt"))
	assert.True(t, os.IsNotExist(err))
}
