// Package rar hand-parses RAR4 and RAR5 volume headers well enough to locate
// file data spans for streaming, without ever decompressing store-method
// payloads.
package rar

import (
	"encoding/binary"
	"errors"

	"nzbengine/pkg/apperrors"
)

var (
	sig4 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}
	sig5 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}
)

// Version identifies the RAR container generation.
type Version int

const (
	VersionUnknown Version = iota
	Version4
	Version5
)

// FileEntry describes one file block's placement within a volume.
type FileEntry struct {
	Name              string
	CompressedSize    int64
	UncompressedSize  int64
	CRC32             uint32
	Method            int   // 0 = store; RAR4 0x30 = store method byte
	DataOffset        int64 // offset of file data within the volume
	ContinuedFromPrev bool
	ContinuedToNext   bool
}

// VolumeInfo is the parsed result for one physical RAR volume.
type VolumeInfo struct {
	Version            Version
	RarPartNumber       int
	Files               []FileEntry
	HasEncryptedHeaders bool
	IsSolid             bool
}

// DetectVersion inspects the leading bytes for a RAR4 or RAR5 signature.
func DetectVersion(data []byte) Version {
	if len(data) >= len(sig5) && bytesEqual(data[:len(sig5)], sig5) {
		return Version5
	}
	if len(data) >= len(sig4) && bytesEqual(data[:len(sig4)], sig4) {
		return Version4
	}
	return VersionUnknown
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ParseVolume parses one volume's block headers and returns its file
// entries. rarPartNumber comes from the caller (derived from the NZB
// filename), not from the header itself.
func ParseVolume(data []byte, rarPartNumber int) (*VolumeInfo, error) {
	ver := DetectVersion(data)
	switch ver {
	case Version4:
		return parseV4(data, rarPartNumber)
	case Version5:
		return parseV5(data, rarPartNumber)
	default:
		return nil, &apperrors.MalformedNzb{Reason: "not a recognized RAR signature"}
	}
}

// RAR4 block types.
const (
	blockMain4       = 0x73
	blockFile4       = 0x74
	blockEnd4        = 0x7B
	flagAddSize4     = 0x8000
	flagLargeFile4   = 0x0100
	flagContinuedTo4 = 0x0002 // split before/after file flags in RAR4 FILE header
	flagSolid4       = 0x0008
	flagPassword4    = 0x0080
)

func parseV4(data []byte, rarPartNumber int) (*VolumeInfo, error) {
	vol := &VolumeInfo{Version: Version4, RarPartNumber: rarPartNumber}
	pos := len(sig4)

	for pos+7 <= len(data) {
		// header: crc16(2) type(1) flags16(2) size16(2)
		typ := data[pos+2]
		flags := binary.LittleEndian.Uint16(data[pos+3 : pos+5])
		size := int(binary.LittleEndian.Uint16(data[pos+5 : pos+7]))
		headerLen := 7
		var addSize int64
		if flags&flagAddSize4 != 0 {
			if pos+11 > len(data) {
				break
			}
			addSize = int64(binary.LittleEndian.Uint32(data[pos+7 : pos+11]))
			headerLen = 11
		}

		switch typ {
		case blockMain4:
			vol.IsSolid = flags&flagSolid4 != 0
		case blockFile4:
			entry, consumed, err := parseFileHeader4(data, pos, headerLen, flags, addSize)
			if err != nil {
				return nil, err
			}
			if flags&flagPassword4 != 0 {
				vol.HasEncryptedHeaders = true
			}
			vol.Files = append(vol.Files, entry)
			pos += consumed
			continue
		case blockEnd4:
			return vol, nil
		}

		pos += size + int(addSize)
		if size == 0 {
			break
		}
	}
	return vol, nil
}

// parseFileHeader4 reads the FILE_HEAD fields that follow the generic block
// header. Real FILE blocks always set LONG_BLOCK (flagAddSize4), so the
// generic header parser in parseV4 has already consumed PACK_SIZE into
// addSize and base points just past it, at UNP_SIZE:
//
//	UNP_SIZE(4) HOST_OS(1) FILE_CRC(4) FTIME(4) UNP_VER(1) METHOD(1) NAME_SIZE(2) ATTR(4)
func parseFileHeader4(data []byte, pos, headerLen int, flags uint16, addSize int64) (FileEntry, int, error) {
	if flags&flagAddSize4 == 0 {
		return FileEntry{}, 0, errors.New("RAR4 file header missing LONG_BLOCK/PACK_SIZE")
	}
	base := pos + headerLen
	if base+21 > len(data) {
		return FileEntry{}, 0, errors.New("truncated RAR4 file header")
	}
	packSize := addSize
	unpSize := int64(binary.LittleEndian.Uint32(data[base : base+4]))
	crc := binary.LittleEndian.Uint32(data[base+5 : base+9])
	method := int(data[base+14])
	nameSize := int(binary.LittleEndian.Uint16(data[base+15 : base+17]))
	fixedLen := 21

	if flags&flagLargeFile4 != 0 {
		if base+fixedLen+8 > len(data) {
			return FileEntry{}, 0, errors.New("truncated RAR4 large-file header")
		}
		highPack := int64(binary.LittleEndian.Uint32(data[base+fixedLen : base+fixedLen+4]))
		highUnp := int64(binary.LittleEndian.Uint32(data[base+fixedLen+4 : base+fixedLen+8]))
		packSize |= highPack << 32
		unpSize |= highUnp << 32
		fixedLen += 8
	}

	nameEnd := base + fixedLen + nameSize
	if nameEnd > len(data) {
		nameEnd = len(data)
	}
	name := string(data[base+fixedLen : nameEnd])

	dataOffset := int64(nameEnd)
	consumed := int(dataOffset-int64(pos)) + int(packSize)

	return FileEntry{
		Name:              name,
		CompressedSize:    packSize,
		UncompressedSize:  unpSize,
		CRC32:             crc,
		Method:            method,
		DataOffset:        dataOffset,
		ContinuedFromPrev: flags&0x0001 != 0,
		ContinuedToNext:   flags&flagContinuedTo4 != 0,
	}, consumed, nil
}

// RAR5 block types.
const (
	blockMain5       = 1
	blockFile5       = 2
	blockEncryption5 = 4
	blockEnd5        = 5
)

func parseV5(data []byte, rarPartNumber int) (*VolumeInfo, error) {
	vol := &VolumeInfo{Version: Version5, RarPartNumber: rarPartNumber}
	pos := len(sig5)

	for pos < len(data) {
		if pos+4 > len(data) {
			break
		}
		pos += 4 // headerCrc32, skipped

		headerSize, n, ok := readVint(data, pos)
		if !ok {
			break
		}
		pos += n
		blockStart := pos

		typ, n, ok := readVint(data, pos)
		if !ok {
			break
		}
		pos += n

		blockFlags, n, ok := readVint(data, pos)
		if !ok {
			break
		}
		pos += n

		var extraSize, dataSize int64
		if blockFlags&1 != 0 {
			extraSize, n, ok = readVint(data, pos)
			if !ok {
				break
			}
			pos += n
		}
		if blockFlags&2 != 0 {
			dataSize, n, ok = readVint(data, pos)
			if !ok {
				break
			}
			pos += n
		}

		switch typ {
		case blockMain5:
			mainFlags, _, _ := readVint(data, pos)
			vol.IsSolid = mainFlags&2 != 0
		case blockEncryption5:
			vol.HasEncryptedHeaders = true
		case blockFile5:
			entry, err := parseFileHeader5(data, pos, dataSize)
			if err == nil {
				vol.Files = append(vol.Files, entry)
			}
		case blockEnd5:
			return vol, nil
		}

		pos = blockStart + int(headerSize) + int(extraSize) + int(dataSize)
	}
	return vol, nil
}

func parseFileHeader5(data []byte, pos int, dataSize int64) (FileEntry, error) {
	fileFlags, n, ok := readVint(data, pos)
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 file header")
	}
	pos += n

	unpSize, n, ok := readVint(data, pos)
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 file header")
	}
	pos += n

	_, n, ok = readVint(data, pos) // attributes
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 file header")
	}
	pos += n

	if fileFlags&2 != 0 {
		pos += 4 // mtime
	}
	var crc uint32
	if fileFlags&4 != 0 {
		if pos+4 > len(data) {
			return FileEntry{}, errors.New("truncated RAR5 crc")
		}
		crc = binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	compressionInfo, n, ok := readVint(data, pos)
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 compression info")
	}
	pos += n

	_, n, ok = readVint(data, pos) // hostOS
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 host os")
	}
	pos += n

	nameLen, n, ok := readVint(data, pos)
	if !ok {
		return FileEntry{}, errors.New("truncated RAR5 name length")
	}
	pos += n

	nameEnd := pos + int(nameLen)
	if nameEnd > len(data) {
		nameEnd = len(data)
	}
	name := string(data[pos:nameEnd])

	return FileEntry{
		Name:             name,
		CompressedSize:   dataSize,
		UncompressedSize: unpSize,
		CRC32:            crc,
		Method:           int(compressionInfo & 0x3F),
		DataOffset:       int64(nameEnd),
	}, nil
}

// readVint decodes a little-endian base-128 varint (continuation bit 0x80).
func readVint(data []byte, pos int) (int64, int, bool) {
	var result int64
	var shift uint
	n := 0
	for {
		if pos+n >= len(data) || n > 10 {
			return 0, 0, false
		}
		b := data[pos+n]
		result |= int64(b&0x7F) << shift
		n++
		if b&0x80 == 0 {
			return result, n, true
		}
		shift += 7
	}
}

// CanStream reports whether every file in the volume is stored (not
// compressed) and no encrypted or solid headers are present, per the
// streamability predicate.
func CanStream(vol *VolumeInfo) bool {
	if vol.HasEncryptedHeaders || vol.IsSolid {
		return false
	}
	for _, f := range vol.Files {
		if f.Method != 0 && f.Method != 0x30 {
			return false
		}
	}
	return true
}
