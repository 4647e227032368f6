// Package extractor walks an installer package archive tree and materializes
// its contents. Nested payload and script containers are expanded in place,
// with pbzx framing stripped on the fly; include/exclude filtering and
// strip-components are applied against paths relative to the outermost
// archive root at every nesting depth.
package extractor

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/javi11/pkgexpand/internal/archive"
	"github.com/javi11/pkgexpand/internal/errors"
	"github.com/javi11/pkgexpand/internal/filter"
	"github.com/javi11/pkgexpand/internal/pathutil"
	"github.com/javi11/pkgexpand/internal/pbzx"
)

// DefaultMarkers are the well-known base names flagging an entry as a
// nested archive to expand rather than write out.
var DefaultMarkers = []string{"Payload", "Scripts"}

// Context carries the per-level extraction state. It is passed by value:
// each recursive descent derives its own copy, so the caller's output root
// and strip budget are untouched when the descent returns or fails.
type Context struct {
	// OutputRoot is where this level's entries are written.
	OutputRoot string
	// LogicalPrefix is this level's path relative to the outermost
	// archive root, used to evaluate filters uniformly across nesting.
	LogicalPrefix string
	// StripBudget is how many leading path segments are still to be
	// discarded at this depth. Never negative.
	StripBudget int
	// Patterns is the immutable include/exclude set for the whole run.
	Patterns *filter.PatternSet
}

// Options configure an Extractor for one run.
type Options struct {
	// ExpandNested enables recursion into marker entries (expand-full).
	ExpandNested bool
	// Markers overrides DefaultMarkers when non-empty.
	Markers []string
	Write   WriteOptions
}

// Extractor is the recursive extraction orchestrator.
type Extractor struct {
	log     *slog.Logger
	writer  *DiskWriter
	markers []string
	opts    Options
}

// New creates an extractor.
func New(opts Options) *Extractor {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return &Extractor{
		log:     slog.Default().With("component", "extractor"),
		writer:  NewDiskWriter(),
		markers: markers,
		opts:    opts,
	}
}

// Expand opens the package at pkgPath and extracts it into outDir.
func (x *Extractor) Expand(pkgPath, outDir string, patterns *filter.PatternSet, stripComponents int) error {
	r, err := archive.OpenFile(pkgPath)
	if err != nil {
		return err
	}
	defer r.Close()

	return x.Run(r, Context{
		OutputRoot:  outDir,
		StripBudget: stripComponents,
		Patterns:    patterns,
	})
}

// Run iterates one archive level, applying sanitization, filtering and
// stripping to each entry and recursing into nested containers.
func (x *Extractor) Run(r archive.Reader, ctx Context) error {
	for {
		entry, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := x.processEntry(r, entry, ctx); err != nil {
			return err
		}
	}
}

func (x *Extractor) processEntry(r archive.Reader, entry *archive.Entry, ctx Context) error {
	// The sanitizer is the security boundary; it runs before anything
	// else and its failures abort the whole run.
	sanitized, err := pathutil.Sanitize(entry.Path)
	if err != nil {
		return err
	}

	logical := path.Join(ctx.LogicalPrefix, filepath.ToSlash(sanitized))
	if ctx.Patterns != nil && !ctx.Patterns.ShouldExtract(logical) {
		x.log.Debug("entry filtered out", "path", logical)
		return nil
	}

	if x.opts.ExpandNested && entry.Kind == archive.KindFile && x.isMarker(sanitized) {
		return x.expandNested(r, ctx, sanitized, logical)
	}
	return x.writeFlat(r, entry, ctx, sanitized, logical)
}

func (x *Extractor) isMarker(p string) bool {
	return slices.Contains(x.markers, path.Base(filepath.ToSlash(p)))
}

// expandNested recurses into a payload or scripts container. The nested
// entries land under the marker's own (stripped) path; whatever part of
// the strip budget the marker path could not absorb carries over to the
// nested entries.
func (x *Extractor) expandNested(r io.Reader, ctx Context, sanitized, logical string) error {
	targetRel, ok := pathutil.StripComponents(sanitized, ctx.StripBudget)
	consumed := ctx.StripBudget
	if !ok {
		// The marker path has no segments left after stripping; the
		// nested container extracts into the output root itself.
		targetRel = ""
		consumed = pathutil.SegmentCount(sanitized)
	}
	childBudget := ctx.StripBudget - consumed
	if childBudget < 0 {
		childBudget = 0
	}

	target := ctx.OutputRoot
	if targetRel != "" {
		target = filepath.Join(ctx.OutputRoot, filepath.FromSlash(targetRel))
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return errors.NewResourceError("create nested output directory", err)
	}

	x.log.Debug("expanding nested archive",
		"path", logical,
		"target", target,
		"strip_budget", childBudget)

	// pbzx is detected from the content itself, never from the entry
	// name. The de-framed stream is piped straight into the archive
	// reader; it is never written to a named file.
	br := bufio.NewReaderSize(r, 32*1024)
	peek, _ := br.Peek(pbzx.Magic)

	src := io.Reader(br)
	var deframeErr chan error
	var pipe *io.PipeReader
	if pbzx.IsPbzx(peek) {
		pr, pw := io.Pipe()
		deframeErr = make(chan error, 1)
		go func() {
			err := pbzx.Deframe(pw, br)
			pw.CloseWithError(err)
			deframeErr <- err
		}()
		src = pr
		pipe = pr
	}

	runErr := x.runNested(src, Context{
		OutputRoot:    target,
		LogicalPrefix: logical,
		StripBudget:   childBudget,
		Patterns:      ctx.Patterns,
	})

	if pipe != nil {
		if runErr == nil {
			// Drain so the deframer reaches its footer checks even
			// when the inner archive ends before the last chunk.
			io.Copy(io.Discard, pipe)
		}
		pipe.Close()
		if err := <-deframeErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func (x *Extractor) runNested(src io.Reader, ctx Context) error {
	inner, err := archive.OpenStream(src)
	if err != nil {
		return err
	}
	defer inner.Close()
	return x.Run(inner, ctx)
}

func (x *Extractor) writeFlat(r io.Reader, entry *archive.Entry, ctx Context, sanitized, logical string) error {
	rel, ok := pathutil.StripComponents(sanitized, ctx.StripBudget)
	if !ok {
		x.log.Debug("entry consumed by strip-components", "path", logical)
		return nil
	}

	linkname := entry.Linkname
	if entry.Kind == archive.KindHardlink {
		// A hardlink target is an archive pathname, so it gets the
		// same sanitization and stripping as the entry itself; a
		// target that cannot be stripped consistently skips the entry.
		linkSanitized, err := pathutil.Sanitize(entry.Linkname)
		if err != nil {
			return err
		}
		linkRel, ok := pathutil.StripComponents(linkSanitized, ctx.StripBudget)
		if !ok {
			x.log.Debug("hardlink target consumed by strip-components", "path", logical)
			return nil
		}
		linkname = filepath.Join(ctx.OutputRoot, filepath.FromSlash(linkRel))
	}

	return x.writer.Extract(Request{
		Dest:     filepath.Join(ctx.OutputRoot, filepath.FromSlash(rel)),
		Kind:     entry.Kind,
		Mode:     entry.Mode,
		ModTime:  entry.ModTime,
		Linkname: linkname,
		Data:     r,
	}, x.opts.Write)
}
