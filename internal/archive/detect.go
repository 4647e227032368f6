package archive

import "bytes"

// sniffLen is how many leading bytes detection looks at. The tar magic
// sits at offset 257, everything else is within the first 8 bytes.
const sniffLen = 262

type compression int

const (
	compressionNone compression = iota
	compressionXz
	compressionGzip
	compressionBzip2
	compressionZstd
	compressionLz4
)

type container int

const (
	containerUnknown container = iota
	containerXar
	containerSevenZip
	containerRar
	containerCpio
	containerTar
)

var (
	xarMagic   = []byte("xar!")
	sevenMagic = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	rarMagic   = []byte{'R', 'a', 'r', '!', 0x1A, 0x07}
	xzMagic    = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic  = []byte{0x1F, 0x8B}
	bzip2Magic = []byte("BZh")
	zstdMagic  = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic   = []byte{0x04, 0x22, 0x4D, 0x18}
	tarMagic   = []byte("ustar")
)

// cpio ASCII magics: newc, newc-with-crc and the old portable format.
var cpioMagics = [][]byte{
	[]byte("070701"),
	[]byte("070702"),
	[]byte("070707"),
}

func detectCompression(peek []byte) compression {
	switch {
	case bytes.HasPrefix(peek, xzMagic):
		return compressionXz
	case bytes.HasPrefix(peek, gzipMagic):
		return compressionGzip
	case bytes.HasPrefix(peek, bzip2Magic):
		return compressionBzip2
	case bytes.HasPrefix(peek, zstdMagic):
		return compressionZstd
	case bytes.HasPrefix(peek, lz4Magic):
		return compressionLz4
	default:
		return compressionNone
	}
}

func detectContainer(peek []byte) container {
	switch {
	case bytes.HasPrefix(peek, xarMagic):
		return containerXar
	case bytes.HasPrefix(peek, sevenMagic):
		return containerSevenZip
	case bytes.HasPrefix(peek, rarMagic):
		return containerRar
	}
	for _, m := range cpioMagics {
		if bytes.HasPrefix(peek, m) {
			return containerCpio
		}
	}
	if len(peek) >= 262 && bytes.Equal(peek[257:262], tarMagic) {
		return containerTar
	}
	return containerUnknown
}
