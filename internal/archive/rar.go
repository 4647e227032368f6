package archive

import (
	"io"

	"github.com/javi11/rardecode/v2"

	"github.com/javi11/pkgexpand/internal/errors"
)

// rarReader adapts a single-volume rar stream to the Reader interface.
type rarReader struct {
	rr *rardecode.Reader
}

func newRarReader(r io.Reader) (Reader, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, errors.NewCollaboratorError("open rar archive", err)
	}
	return &rarReader{rr: rr}, nil
}

func (r *rarReader) Next() (*Entry, error) {
	hdr, err := r.rr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.NewCollaboratorError("read rar header", err)
	}

	kind := KindFile
	if hdr.IsDir {
		kind = KindDir
	}

	return &Entry{
		Path:    hdr.Name,
		Kind:    kind,
		Mode:    hdr.Mode(),
		ModTime: hdr.ModificationTime,
		Size:    hdr.UnPackedSize,
	}, nil
}

func (r *rarReader) Read(p []byte) (int, error) {
	return r.rr.Read(p)
}

func (r *rarReader) Close() error {
	return nil
}
