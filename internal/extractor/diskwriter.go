package extractor

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/javi11/pkgexpand/internal/archive"
	"github.com/javi11/pkgexpand/internal/errors"
)

// WriteOptions control how entries are materialized on disk.
type WriteOptions struct {
	// Force overwrites existing outputs instead of failing.
	Force bool
	// PreservePermissions applies the archive's mode bits to outputs.
	PreservePermissions bool
	// PreserveTimes applies the archive's modification times to files.
	PreserveTimes bool
}

// Request describes one fully-resolved entry to materialize: the
// destination is already joined with the output root and the hardlink
// target already resolved to a disk path.
type Request struct {
	Dest     string
	Kind     archive.Kind
	Mode     fs.FileMode
	ModTime  time.Time
	Linkname string
	Data     io.Reader
}

// DiskWriter materializes archive entries on the local filesystem.
type DiskWriter struct {
	log *slog.Logger
}

// NewDiskWriter creates a disk writer.
func NewDiskWriter() *DiskWriter {
	return &DiskWriter{
		log: slog.Default().With("component", "disk-writer"),
	}
}

// Extract writes one entry. Parent directories are created idempotently.
// Without Force, an existing regular-file destination fails before any
// byte of it is overwritten.
func (w *DiskWriter) Extract(req Request, opts WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0755); err != nil {
		return errors.NewResourceError(fmt.Sprintf("create parent directory for %s", req.Dest), err)
	}

	switch req.Kind {
	case archive.KindDir:
		return w.extractDir(req, opts)
	case archive.KindFile:
		return w.extractFile(req, opts)
	case archive.KindSymlink:
		return w.extractLink(req, opts, os.Symlink)
	case archive.KindHardlink:
		return w.extractLink(req, opts, os.Link)
	default:
		w.log.Debug("skipping unsupported entry type", "dest", req.Dest)
		return nil
	}
}

func (w *DiskWriter) extractDir(req Request, opts WriteOptions) error {
	if err := os.MkdirAll(req.Dest, 0755); err != nil {
		return errors.NewResourceError(fmt.Sprintf("create directory %s", req.Dest), err)
	}
	if opts.PreservePermissions && req.Mode.Perm() != 0 {
		if err := os.Chmod(req.Dest, req.Mode.Perm()); err != nil {
			return errors.NewResourceError(fmt.Sprintf("set permissions on %s", req.Dest), err)
		}
	}
	return nil
}

func (w *DiskWriter) extractFile(req Request, opts WriteOptions) error {
	perm := fs.FileMode(0644)
	if opts.PreservePermissions && req.Mode.Perm() != 0 {
		perm = req.Mode.Perm()
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(req.Dest, flags, perm)
	if err != nil {
		if os.IsExist(err) {
			return errors.NewResourceError(fmt.Sprintf("%s: output exists (use --force to overwrite)", req.Dest), err)
		}
		return errors.NewResourceError(fmt.Sprintf("create file %s", req.Dest), err)
	}

	if _, err := io.Copy(f, req.Data); err != nil {
		f.Close()
		return errors.NewCollaboratorError(fmt.Sprintf("write %s", req.Dest), err)
	}
	if err := f.Close(); err != nil {
		return errors.NewResourceError(fmt.Sprintf("close %s", req.Dest), err)
	}

	if opts.PreservePermissions && req.Mode.Perm() != 0 {
		if err := os.Chmod(req.Dest, req.Mode.Perm()); err != nil {
			return errors.NewResourceError(fmt.Sprintf("set permissions on %s", req.Dest), err)
		}
	}
	if opts.PreserveTimes && !req.ModTime.IsZero() {
		if err := os.Chtimes(req.Dest, req.ModTime, req.ModTime); err != nil {
			return errors.NewResourceError(fmt.Sprintf("set times on %s", req.Dest), err)
		}
	}
	return nil
}

func (w *DiskWriter) extractLink(req Request, opts WriteOptions, link func(target, dest string) error) error {
	if opts.Force {
		if err := os.Remove(req.Dest); err != nil && !os.IsNotExist(err) {
			return errors.NewResourceError(fmt.Sprintf("remove existing %s", req.Dest), err)
		}
	}
	if err := link(req.Linkname, req.Dest); err != nil {
		if os.IsExist(err) {
			return errors.NewResourceError(fmt.Sprintf("%s: output exists (use --force to overwrite)", req.Dest), err)
		}
		return errors.NewResourceError(fmt.Sprintf("create link %s", req.Dest), err)
	}
	return nil
}
