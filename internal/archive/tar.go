package archive

import (
	"archive/tar"
	"io"

	"github.com/javi11/pkgexpand/internal/errors"
)

// tarReader adapts a tar stream to the Reader interface.
type tarReader struct {
	tr *tar.Reader
}

func newTarReader(r io.Reader) Reader {
	return &tarReader{tr: tar.NewReader(r)}
}

func (r *tarReader) Next() (*Entry, error) {
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.NewCollaboratorError("read tar header", err)
	}

	kind := kindOf(hdr.FileInfo().Mode())
	if hdr.Typeflag == tar.TypeLink {
		kind = KindHardlink
	}

	return &Entry{
		Path:     hdr.Name,
		Linkname: hdr.Linkname,
		Kind:     kind,
		Mode:     hdr.FileInfo().Mode(),
		ModTime:  hdr.ModTime,
		Size:     hdr.Size,
	}, nil
}

func (r *tarReader) Read(p []byte) (int, error) {
	return r.tr.Read(p)
}

func (r *tarReader) Close() error {
	return nil
}
