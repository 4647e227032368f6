// Package pbzx parses the pbzx streaming container used by macOS installer
// package payloads. A pbzx stream wraps one or more XZ-compressed chunks
// behind big-endian length-prefixed headers; Deframe strips the framing and
// re-emits the embedded XZ streams verbatim, without decompressing them.
package pbzx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/javi11/pkgexpand/internal/errors"
)

// blockSize bounds each copy so arbitrarily large chunks never need a
// whole-chunk buffer. Inputs are forward-only; the deframer never seeks.
const blockSize = 8 * 1024

// chunkContinues is the flags bit indicating another chunk follows.
const chunkContinues = uint64(1) << 24

var (
	magic    = []byte("pbzx")
	xzHeader = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
)

// Magic is the number of leading bytes IsPbzx needs to decide.
const Magic = 4

// IsPbzx reports whether b starts with the pbzx container magic.
func IsPbzx(b []byte) bool {
	return len(b) >= len(magic) && bytes.Equal(b[:len(magic)], magic)
}

// Deframe reads a complete pbzx container from src and writes the
// concatenated embedded XZ streams to dst. Single pass, O(blockSize)
// auxiliary memory.
func Deframe(dst io.Writer, src io.Reader) error {
	hdr := make([]byte, len(xzHeader))

	if err := readFull(src, hdr[:Magic]); err != nil {
		return err
	}
	if !IsPbzx(hdr[:Magic]) {
		return errors.NewFormatError("not a pbzx stream", nil)
	}

	flags, err := readUint64(src)
	if err != nil {
		return err
	}

	for flags&chunkContinues != 0 {
		if flags, err = readUint64(src); err != nil {
			return err
		}
		length, err := readUint64(src)
		if err != nil {
			return err
		}

		if err := readFull(src, hdr[:]); err != nil {
			return err
		}
		if !bytes.Equal(hdr[:], xzHeader) {
			return errors.NewFormatError("pbzx chunk header is not <FD>7zXZ<00>", nil)
		}
		if length < uint64(len(xzHeader)) {
			return errors.NewFormatError(fmt.Sprintf("pbzx chunk length %d too small", length), nil)
		}
		if err := writeAll(dst, hdr[:]); err != nil {
			return err
		}

		if err := copyChunk(dst, src, length-uint64(len(xzHeader))); err != nil {
			return err
		}
	}

	return nil
}

// copyChunk copies remaining bytes from src to dst in bounded blocks,
// tracking the final two bytes across block boundaries to verify the XZ
// stream footer.
func copyChunk(dst io.Writer, src io.Reader, remaining uint64) error {
	var buf [blockSize]byte
	var tail [2]byte

	for remaining > 0 {
		want := uint64(len(buf))
		if remaining < want {
			want = remaining
		}
		if err := readFull(src, buf[:want]); err != nil {
			return err
		}

		if want >= 2 {
			tail[0] = buf[want-2]
			tail[1] = buf[want-1]
		} else {
			tail[0] = tail[1]
			tail[1] = buf[0]
		}

		if err := writeAll(dst, buf[:want]); err != nil {
			return err
		}
		remaining -= want
	}

	if tail[0] != 'Y' || tail[1] != 'Z' {
		return errors.NewFormatError("pbzx chunk footer is not YZ", nil)
	}
	return nil
}

func readFull(src io.Reader, b []byte) error {
	if _, err := io.ReadFull(src, b); err != nil {
		return errors.NewFormatError("truncated pbzx stream", err)
	}
	return nil
}

func readUint64(src io.Reader) (uint64, error) {
	var b [8]byte
	if err := readFull(src, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeAll(dst io.Writer, b []byte) error {
	if _, err := dst.Write(b); err != nil {
		return errors.NewResourceError("write deframed pbzx data", err)
	}
	return nil
}
