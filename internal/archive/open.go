package archive

import (
	"bufio"
	"compress/bzip2"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"

	"github.com/javi11/pkgexpand/internal/errors"
)

// OpenFile opens an archive from a named file. Random-access formats (xar,
// 7z) are detected here; anything else falls through to the streaming path.
func OpenFile(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewResourceError("open archive", err)
	}

	var head [8]byte
	n, err := f.ReadAt(head[:], 0)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, errors.NewResourceError("read archive header", err)
	}

	switch detectContainer(head[:n]) {
	case containerXar:
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, errors.NewResourceError("stat archive", err)
		}
		r, err := newXarReader(f, fi.Size())
		if err != nil {
			f.Close()
			return nil, err
		}
		r.closer = f
		return r, nil
	case containerSevenZip:
		f.Close()
		return openSevenZip(path)
	default:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.NewResourceError("rewind archive", err)
		}
		r, err := OpenStream(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &closingReader{Reader: r, closer: f}, nil
	}
}

// OpenStream opens an archive from a forward-only byte stream. A leading
// compression filter is unwrapped first, then the container is detected.
// Random-access formats arriving as streams are spilled to a temporary
// file, mirroring how non-seekable sources must be handled.
func OpenStream(r io.Reader) (Reader, error) {
	br := bufio.NewReaderSize(r, 32*1024)

	peek, err := peekStream(br)
	if err != nil {
		return nil, err
	}

	if c := detectCompression(peek); c != compressionNone {
		dec, err := newDecompressor(c, br)
		if err != nil {
			return nil, errors.NewCollaboratorError("open compression filter", err)
		}
		br = bufio.NewReaderSize(dec, 32*1024)
		if peek, err = peekStream(br); err != nil {
			return nil, err
		}
	}

	switch detectContainer(peek) {
	case containerCpio:
		return newCpioReader(br), nil
	case containerTar:
		return newTarReader(br), nil
	case containerRar:
		return newRarReader(br)
	case containerXar, containerSevenZip:
		return spillAndOpen(br)
	default:
		return nil, errors.NewCollaboratorError("unrecognized archive format", nil)
	}
}

// peekStream returns up to sniffLen leading bytes without consuming them.
// Streams shorter than sniffLen are fine as long as they are not empty.
func peekStream(br *bufio.Reader) ([]byte, error) {
	peek, err := br.Peek(sniffLen)
	if len(peek) == 0 {
		return nil, errors.NewCollaboratorError("empty archive stream", err)
	}
	return peek, nil
}

func newDecompressor(c compression, r io.Reader) (io.Reader, error) {
	switch c {
	case compressionXz:
		return xz.NewReader(r)
	case compressionGzip:
		return gzip.NewReader(r)
	case compressionBzip2:
		return bzip2.NewReader(r), nil
	case compressionZstd:
		return zstd.NewReader(r)
	case compressionLz4:
		return lz4.NewReader(r), nil
	default:
		return r, nil
	}
}

// spillAndOpen copies a random-access container arriving on a pipe into a
// temporary file and reopens it from there. The file is removed on Close.
func spillAndOpen(r io.Reader) (Reader, error) {
	fs := afero.NewOsFs()
	tmp, err := afero.TempFile(fs, "", "pkgexpand-nested-*")
	if err != nil {
		return nil, errors.NewResourceError("create spill file", err)
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		fs.Remove(name)
		return nil, errors.NewResourceError("spill nested archive", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(name)
		return nil, errors.NewResourceError("close spill file", err)
	}

	inner, err := OpenFile(name)
	if err != nil {
		fs.Remove(name)
		return nil, err
	}
	return &closingReader{Reader: inner, cleanup: func() { fs.Remove(name) }}, nil
}

// closingReader tacks extra teardown onto a Reader.
type closingReader struct {
	Reader
	closer  io.Closer
	cleanup func()
}

func (r *closingReader) Close() error {
	err := r.Reader.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	if r.cleanup != nil {
		r.cleanup()
	}
	return err
}
