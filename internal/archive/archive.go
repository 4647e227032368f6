// Package archive provides a uniform reader over the container formats a
// macOS installer package can carry: xar on the outside, cpio/tar (behind a
// compression filter) for payloads and scripts, plus rar and 7z for the odd
// repacked source. Formats and filters are detected from magic bytes, never
// from entry names.
package archive

import (
	"io"
	"io/fs"
	"time"
)

// Kind describes what an archive entry materializes as.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindHardlink
	// KindOther covers entry types the extractor does not materialize
	// (devices, fifos, unresolvable links).
	KindOther
)

// Entry is one archive member. It is only valid until the next call to
// Next on the Reader that produced it.
type Entry struct {
	// Path is the raw pathname as stored in the archive.
	Path string
	// Linkname is the symlink target or hardlink source, when applicable.
	Linkname string
	Kind     Kind
	Mode     fs.FileMode
	ModTime  time.Time
	Size     int64
}

// Reader iterates an archive. Next advances to the following entry and
// returns io.EOF at end-of-archive; Read yields the current entry's data.
// All backends are forward-only.
type Reader interface {
	Next() (*Entry, error)
	io.Reader
	Close() error
}
