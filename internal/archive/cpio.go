package archive

import (
	"io"
	"io/fs"

	"github.com/cavaliergopher/cpio"

	"github.com/javi11/pkgexpand/internal/errors"
)

// cpioReader adapts a cpio stream (the native payload format of installer
// packages) to the Reader interface.
type cpioReader struct {
	cr *cpio.Reader
}

func newCpioReader(r io.Reader) Reader {
	return &cpioReader{cr: cpio.NewReader(r)}
}

func (r *cpioReader) Next() (*Entry, error) {
	hdr, err := r.cr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.NewCollaboratorError("read cpio header", err)
	}

	mode := hdr.FileInfo().Mode()
	entry := &Entry{
		Path:     hdr.Name,
		Linkname: hdr.Linkname,
		Kind:     kindOf(mode),
		Mode:     mode,
		ModTime:  hdr.ModTime,
		Size:     hdr.Size,
	}

	// cpio stores a symlink's target as the entry data.
	if entry.Kind == KindSymlink && entry.Linkname == "" {
		target, err := io.ReadAll(io.LimitReader(r.cr, hdr.Size))
		if err != nil {
			return nil, errors.NewCollaboratorError("read cpio symlink target", err)
		}
		entry.Linkname = string(target)
	}

	return entry, nil
}

func (r *cpioReader) Read(p []byte) (int, error) {
	return r.cr.Read(p)
}

func (r *cpioReader) Close() error {
	return nil
}

func kindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDir
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}
