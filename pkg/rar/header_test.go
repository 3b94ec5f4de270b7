package rar

import (
	"encoding/binary"
	"testing"
)

// buildV4File constructs a real RAR4 FILE block: generic header (with
// LONG_BLOCK set, so ADD_SIZE carries PACK_SIZE) followed by
// UNP_SIZE(4) HOST_OS(1) FILE_CRC(4) FTIME(4) UNP_VER(1) METHOD(1)
// NAME_SIZE(2) ATTR(4), then the name and payload bytes.
func buildV4File(name string, payload []byte, extraFlags uint16) []byte {
	var buf []byte
	buf = append(buf, sig4...)

	nameBytes := []byte(name)
	headerLen := 11 // crc16+type+flags16+size16 + ADD_SIZE(4)
	fixedLen := 21
	blockSize := headerLen + fixedLen + len(nameBytes)
	flags := flagAddSize4 | extraFlags

	buf = append(buf, 0, 0) // crc16 placeholder
	buf = append(buf, blockFile4)
	fbuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(fbuf, flags)
	buf = append(buf, fbuf...)
	sbuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(sbuf, uint16(blockSize))
	buf = append(buf, sbuf...)
	addSizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(addSizeBuf, uint32(len(payload))) // ADD_SIZE == PACK_SIZE
	buf = append(buf, addSizeBuf...)

	fixed := make([]byte, fixedLen)
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(len(payload))) // UNP_SIZE
	fixed[4] = 0                                                    // HOST_OS
	binary.LittleEndian.PutUint32(fixed[5:9], 0)                    // FILE_CRC
	binary.LittleEndian.PutUint32(fixed[9:13], 0)                   // FTIME
	fixed[13] = 29                                                  // UNP_VER
	fixed[14] = 0x30                                                // METHOD: store
	binary.LittleEndian.PutUint16(fixed[15:17], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint32(fixed[17:21], 0) // ATTR
	buf = append(buf, fixed...)
	buf = append(buf, nameBytes...)
	buf = append(buf, payload...)

	// END block
	buf = append(buf, 0, 0, blockEnd4, 0, 0, 7, 0)
	return buf
}

func TestDetectVersion(t *testing.T) {
	data := buildV4File("x.bin", []byte("hello"), 0)
	if DetectVersion(data) != Version4 {
		t.Fatalf("expected Version4")
	}
}

func TestParseVolumeV4SingleFile(t *testing.T) {
	data := buildV4File("movie.mkv", []byte("abcdefghij"), 0)
	vol, err := ParseVolume(data, 1)
	if err != nil {
		t.Fatalf("ParseVolume: %v", err)
	}
	if len(vol.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(vol.Files))
	}
	f := vol.Files[0]
	if f.Name != "movie.mkv" {
		t.Fatalf("got name %q", f.Name)
	}
	if f.CompressedSize != 10 {
		t.Fatalf("got size %d", f.CompressedSize)
	}
	if f.Method != 0x30 {
		t.Fatalf("got method %x", f.Method)
	}
}

func TestCanStreamRejectsCompressed(t *testing.T) {
	vol := &VolumeInfo{Files: []FileEntry{{Method: 0x31}}}
	if CanStream(vol) {
		t.Fatal("expected non-store method to be unstreamable")
	}
	vol2 := &VolumeInfo{Files: []FileEntry{{Method: 0}}}
	if !CanStream(vol2) {
		t.Fatal("expected store method to be streamable")
	}
}

func TestReadVint(t *testing.T) {
	data := []byte{0x05}
	v, n, ok := readVint(data, 0)
	if !ok || v != 5 || n != 1 {
		t.Fatalf("single-byte vint: got %d %d %v", v, n, ok)
	}

	data2 := []byte{0x80 | 0x01, 0x02} // (1) + (2<<7) = 257
	v, n, ok = readVint(data2, 0)
	if !ok || v != 257 || n != 2 {
		t.Fatalf("two-byte vint: got %d %d %v", v, n, ok)
	}
}
