package archive

import (
	"io"

	"github.com/javi11/sevenzip"
	"github.com/spf13/afero"

	"github.com/javi11/pkgexpand/internal/errors"
)

// sevenZipReader exposes a 7z archive through the forward-only Reader
// interface by walking the central index in order.
type sevenZipReader struct {
	rc   *sevenzip.ReadCloser
	next int
	cur  io.ReadCloser
}

func openSevenZip(path string) (Reader, error) {
	rc, err := sevenzip.OpenReader(path, afero.NewOsFs())
	if err != nil {
		return nil, errors.NewCollaboratorError("open 7z archive", err)
	}
	return &sevenZipReader{rc: rc}, nil
}

func (r *sevenZipReader) Next() (*Entry, error) {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	if r.next >= len(r.rc.File) {
		return nil, io.EOF
	}

	f := r.rc.File[r.next]
	r.next++

	fi := f.FileInfo()
	entry := &Entry{
		Path:    f.Name,
		Kind:    kindOf(fi.Mode()),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		Size:    fi.Size(),
	}

	if entry.Kind == KindFile {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.NewCollaboratorError("open 7z entry", err)
		}
		r.cur = rc
	}

	return entry, nil
}

func (r *sevenZipReader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	return r.cur.Read(p)
}

func (r *sevenZipReader) Close() error {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	return r.rc.Close()
}
