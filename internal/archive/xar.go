package archive

import (
	"compress/bzip2"
	"compress/zlib"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/javi11/pkgexpand/internal/errors"
)

// xar header layout: magic "xar!", u16 header size, u16 version,
// u64 compressed TOC length, u64 uncompressed TOC length, u32 checksum
// algorithm. All fields big-endian. The zlib-compressed XML table of
// contents follows the header; file data lives in the heap after the TOC.
const xarHeaderLen = 28

// xarReader reads the xar outer container of an installer package.
type xarReader struct {
	ra      io.ReaderAt
	heap    int64
	entries []xarEntry
	next    int
	cur     io.Reader
	closer  io.Closer
}

type xarEntry struct {
	path     string
	linkname string
	kind     Kind
	mode     fs.FileMode
	mtime    time.Time
	size     int64
	data     *xarData
}

type xarData struct {
	offset   int64
	length   int64 // bytes occupied in the heap
	size     int64 // extracted size
	encoding string
}

// TOC XML shapes. Only the elements the extractor needs are mapped.
type xarTOC struct {
	XMLName xml.Name     `xml:"xar"`
	Files   []xarTOCFile `xml:"toc>file"`
}

type xarTOCFile struct {
	ID       string       `xml:"id,attr"`
	Name     string       `xml:"name"`
	Type     xarTOCType   `xml:"type"`
	Link     string       `xml:"link"`
	Mode     string       `xml:"mode"`
	Mtime    string       `xml:"mtime"`
	Data     *xarTOCData  `xml:"data"`
	Children []xarTOCFile `xml:"file"`
}

type xarTOCType struct {
	Link  string `xml:"link,attr"`
	Value string `xml:",chardata"`
}

type xarTOCData struct {
	Offset   int64 `xml:"offset"`
	Size     int64 `xml:"size"`
	Length   int64 `xml:"length"`
	Encoding struct {
		Style string `xml:"style,attr"`
	} `xml:"encoding"`
}

func newXarReader(ra io.ReaderAt, size int64) (*xarReader, error) {
	var hdr [xarHeaderLen]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, errors.NewFormatError("read xar header", err)
	}
	if detectContainer(hdr[:4]) != containerXar {
		return nil, errors.NewFormatError("not a xar archive", nil)
	}

	headerSize := int64(binary.BigEndian.Uint16(hdr[4:6]))
	tocCompressed := int64(binary.BigEndian.Uint64(hdr[8:16]))
	if headerSize < xarHeaderLen || tocCompressed <= 0 || headerSize+tocCompressed > size {
		return nil, errors.NewFormatError("xar header fields out of range", nil)
	}

	zr, err := zlib.NewReader(io.NewSectionReader(ra, headerSize, tocCompressed))
	if err != nil {
		return nil, errors.NewFormatError("open xar table of contents", err)
	}
	defer zr.Close()

	var toc xarTOC
	if err := xml.NewDecoder(zr).Decode(&toc); err != nil {
		return nil, errors.NewFormatError("parse xar table of contents", err)
	}

	r := &xarReader{
		ra:   ra,
		heap: headerSize + tocCompressed,
	}
	pathByID := make(map[string]string)
	for _, f := range toc.Files {
		if err := r.flatten(f, "", pathByID); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// flatten walks the TOC file tree depth-first, accumulating full paths.
func (r *xarReader) flatten(f xarTOCFile, dir string, pathByID map[string]string) error {
	if f.Name == "" {
		return errors.NewFormatError("xar entry without a name", nil)
	}
	full := f.Name
	if dir != "" {
		full = path.Join(dir, f.Name)
	}
	pathByID[f.ID] = full

	e := xarEntry{
		path:  full,
		mode:  parseXarMode(f.Mode),
		mtime: parseXarTime(f.Mtime),
	}

	switch f.Type.Value {
	case "directory":
		e.kind = KindDir
	case "symlink":
		e.kind = KindSymlink
		e.linkname = f.Link
	case "hardlink":
		e.kind = KindHardlink
		// The type's link attribute refers to the TOC id of the
		// original file, which precedes the link in document order.
		target, ok := pathByID[f.Type.Link]
		if !ok {
			return errors.NewFormatError(fmt.Sprintf("xar hardlink %q references unknown id %q", full, f.Type.Link), nil)
		}
		e.linkname = target
	case "file", "":
		e.kind = KindFile
		if f.Data != nil {
			e.size = f.Data.Size
			e.data = &xarData{
				offset:   f.Data.Offset,
				length:   f.Data.Length,
				size:     f.Data.Size,
				encoding: f.Data.Encoding.Style,
			}
		}
	default:
		e.kind = KindOther
	}

	r.entries = append(r.entries, e)

	for _, child := range f.Children {
		if err := r.flatten(child, full, pathByID); err != nil {
			return err
		}
	}
	return nil
}

func (r *xarReader) Next() (*Entry, error) {
	r.cur = nil

	if r.next >= len(r.entries) {
		return nil, io.EOF
	}
	e := r.entries[r.next]
	r.next++

	if e.data != nil {
		sec := io.NewSectionReader(r.ra, r.heap+e.data.offset, e.data.length)
		dec, err := xarDecoder(e.data.encoding, sec)
		if err != nil {
			return nil, err
		}
		r.cur = dec
	}

	return &Entry{
		Path:     e.path,
		Linkname: e.linkname,
		Kind:     e.kind,
		Mode:     e.mode,
		ModTime:  e.mtime,
		Size:     e.size,
	}, nil
}

func (r *xarReader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	return r.cur.Read(p)
}

func (r *xarReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// xarDecoder wraps a heap section with the decompressor named by the TOC
// encoding style. xar calls its zlib encoding "x-gzip".
func xarDecoder(style string, sec io.Reader) (io.Reader, error) {
	switch style {
	case "", "application/octet-stream":
		return sec, nil
	case "application/x-gzip":
		zr, err := zlib.NewReader(sec)
		if err != nil {
			return nil, errors.NewFormatError("open xar zlib data", err)
		}
		return zr, nil
	case "application/x-bzip2":
		return bzip2.NewReader(sec), nil
	case "application/x-xz":
		xr, err := xz.NewReader(sec)
		if err != nil {
			return nil, errors.NewFormatError("open xar xz data", err)
		}
		return xr, nil
	case "application/x-lzma":
		lr, err := lzma.NewReader(sec)
		if err != nil {
			return nil, errors.NewFormatError("open xar lzma data", err)
		}
		return lr, nil
	default:
		return nil, errors.NewCollaboratorError(fmt.Sprintf("unsupported xar encoding %q", style), nil)
	}
}

func parseXarMode(s string) fs.FileMode {
	if s == "" {
		return 0644
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0644
	}
	return fs.FileMode(m) & fs.ModePerm
}

func parseXarTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
