package mount

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"nzbengine/pkg/apperrors"
	"nzbengine/pkg/nzb"
)

const testNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file poster="p@x" date="1700000000" subject="&quot;clip.mp4&quot; yEnc (1/1)">
<groups><group>a.b.test</group></groups>
<segments><segment bytes="10" number="1">seg1@test</segment></segments>
</file>
</nzb>`

type fakeArticleSource struct {
	data  map[string][]byte
	calls atomic.Int32
}

func (f *fakeArticleSource) GetDecodedArticleBytes(ctx context.Context, messageID string) ([]byte, error) {
	f.calls.Add(1)
	return f.data[messageID], nil
}

// rar4Sig and the block type/flag bytes below mirror the real RAR4 wire
// format validated in pkg/rar's own tests; they are duplicated here (rather
// than imported) because they are unexported details of that package and
// this test exercises the service end to end as an external caller would,
// off real bytes fetched over the wire.
var rar4Sig = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}

const (
	rarBlockMain         = 0x73
	rarBlockFile         = 0x74
	rarBlockEnd          = 0x7B
	rarFlagAddSize       = 0x8000
	rarFlagSolid         = 0x0008
	rarFlagContinuedTo   = 0x0002
	rarFlagContinuedFrom = 0x0001
)

// buildRar4Volume builds one real RAR4 volume containing a single stored
// FILE block for name/payload, with extraFlags ORed onto the FILE header's
// flags (e.g. continuation markers).
func buildRar4Volume(name string, payload []byte, extraFlags uint16) []byte {
	var buf []byte
	buf = append(buf, rar4Sig...)

	nameBytes := []byte(name)
	headerLen := 11
	fixedLen := 21
	blockSize := headerLen + fixedLen + len(nameBytes)
	flags := uint16(rarFlagAddSize) | extraFlags

	buf = append(buf, 0, 0, rarBlockFile)
	fbuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(fbuf, flags)
	buf = append(buf, fbuf...)
	sbuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(sbuf, uint16(blockSize))
	buf = append(buf, sbuf...)
	addSizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(addSizeBuf, uint32(len(payload)))
	buf = append(buf, addSizeBuf...)

	fixed := make([]byte, fixedLen)
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(len(payload))) // UNP_SIZE
	fixed[14] = 0x30                                                // METHOD: store
	binary.LittleEndian.PutUint16(fixed[15:17], uint16(len(nameBytes)))
	buf = append(buf, fixed...)
	buf = append(buf, nameBytes...)
	buf = append(buf, payload...)

	buf = append(buf, 0, 0, rarBlockEnd, 0, 0, 7, 0)
	return buf
}

// buildRar4SolidVolume builds a RAR4 volume whose MAIN header sets the solid
// flag, with no FILE blocks — enough to make the service's IsSolid check in
// validateAndAssembleRar fail after parsing exactly this one volume's header.
func buildRar4SolidVolume() []byte {
	var buf []byte
	buf = append(buf, rar4Sig...)
	buf = append(buf, 0, 0, rarBlockMain, byte(rarFlagSolid), 0, 7, 0)
	buf = append(buf, 0, 0, rarBlockEnd, 0, 0, 7, 0)
	return buf
}

func nzbFileEntry(name, messageID string, size int) string {
	return fmt.Sprintf(`<file poster="p@x" date="1700000000" subject="&quot;%s&quot; yEnc (1/1)">
<groups><group>a.b.test</group></groups>
<segments><segment bytes="%d" number="1">%s</segment></segments>
</file>`, name, size, messageID)
}

func TestCreateMountAndStream(t *testing.T) {
	src := &fakeArticleSource{data: map[string][]byte{
		"seg1@test": []byte("0123456789"),
	}}
	svc := NewService(NewMemoryStore(), src, 2)
	defer svc.Close()

	info, err := svc.CreateMount(context.Background(), []byte(testNZB))
	if err != nil {
		t.Fatalf("CreateMount: %v", err)
	}
	if info.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", info.Status, info.ErrorReason)
	}
	if len(info.MediaFiles) != 1 {
		t.Fatalf("expected 1 media file, got %d", len(info.MediaFiles))
	}
	if info.MediaFiles[0].ContentType != "video/mp4" {
		t.Fatalf("got content type %q", info.MediaFiles[0].ContentType)
	}

	created, err := svc.CreateStream(context.Background(), info.ID, 0, "")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	defer created.Reader.Close()

	buf := make([]byte, 10)
	n, _ := created.Reader.Read(buf)
	if string(buf[:n]) != "0123456789" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestCreateStreamUnknownMount(t *testing.T) {
	svc := NewService(NewMemoryStore(), &fakeArticleSource{}, 1)
	defer svc.Close()
	if _, err := svc.CreateStream(context.Background(), "nope", 0, ""); err == nil {
		t.Fatal("expected MountNotFound error")
	}
}

func TestContentTypeForUnknownExtension(t *testing.T) {
	if ContentTypeFor("file.xyz") != "application/octet-stream" {
		t.Fatal("expected default content type")
	}
}

func TestExtractsQuotedFilename(t *testing.T) {
	if !strings.Contains(testNZB, "clip.mp4") {
		t.Fatal("fixture sanity check")
	}
	parsed, err := nzb.Parse(strings.NewReader(testNZB))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Files) != 1 || parsed.Files[0].Name != "clip.mp4" {
		t.Fatalf("expected quoted filename %q, got %+v", "clip.mp4", parsed.Files)
	}
}

// TestCreateMountMultiVolumeRarStream covers S5: a two-volume RAR archive
// presents as one seekable file, and a Range request straddling the volume
// boundary is served by concatenating bytes pulled from both volumes.
func TestCreateMountMultiVolumeRarStream(t *testing.T) {
	part1 := []byte("ABCDEFGHIJ") // 10 bytes, volume 1
	part2 := []byte("KLMNOPQRST") // 10 bytes, volume 2
	vol1 := buildRar4Volume("movie.mkv", part1, rarFlagContinuedTo)
	vol2 := buildRar4Volume("movie.mkv", part2, rarFlagContinuedFrom)

	src := &fakeArticleSource{data: map[string][]byte{
		"vol1@test": vol1,
		"vol2@test": vol2,
	}}

	nzbDoc := `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
` + nzbFileEntry("movie.part1.rar", "vol1@test", len(vol1)) + `
` + nzbFileEntry("movie.part2.rar", "vol2@test", len(vol2)) + `
</nzb>`

	svc := NewService(NewMemoryStore(), src, 2)
	defer svc.Close()

	info, err := svc.CreateMount(context.Background(), []byte(nzbDoc))
	if err != nil {
		t.Fatalf("CreateMount: %v", err)
	}
	if info.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", info.Status, info.ErrorReason)
	}
	if len(info.MediaFiles) != 1 {
		t.Fatalf("expected rar parts to collapse into 1 media file, got %d", len(info.MediaFiles))
	}
	ref := info.MediaFiles[0]
	if !ref.IsRarPart {
		t.Fatal("expected IsRarPart")
	}
	wantSize := int64(len(part1) + len(part2))
	if ref.Size != wantSize {
		t.Fatalf("expected assembled size %d, got %d", wantSize, ref.Size)
	}

	// Range spans the volume boundary: bytes 8-13 straddle part1's last two
	// bytes ("IJ") and part2's first four ("KLMN").
	created, err := svc.CreateStream(context.Background(), info.ID, 0, "bytes=8-13")
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	defer created.Reader.Close()

	buf := make([]byte, 6)
	got, err := io.ReadFull(created.Reader, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 6 || string(buf) != "IJKLMN" {
		t.Fatalf("expected %q, got %q", "IJKLMN", buf)
	}
}

// TestCreateMountSolidArchiveRejected covers S6: a solid archive must be
// rejected at mount time with the exact spec'd reason, after fetching no more
// than the one volume needed to discover the MAIN header's solid flag.
func TestCreateMountSolidArchiveRejected(t *testing.T) {
	vol := buildRar4SolidVolume()
	src := &fakeArticleSource{data: map[string][]byte{
		"solid@test": vol,
	}}

	nzbDoc := `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
` + nzbFileEntry("movie.rar", "solid@test", len(vol)) + `
</nzb>`

	svc := NewService(NewMemoryStore(), src, 1)
	defer svc.Close()

	info, err := svc.CreateMount(context.Background(), []byte(nzbDoc))
	if err == nil {
		t.Fatal("expected error for solid archive")
	}
	const wantReason = "Solid archive cannot be streamed - requires full extraction"
	var notStreamable *apperrors.NotStreamable
	if !errors.As(err, &notStreamable) || notStreamable.Reason != wantReason {
		t.Fatalf("expected NotStreamable with reason %q, got %q", wantReason, err.Error())
	}
	if info != nil {
		t.Fatal("expected nil info on error")
	}

	if calls := src.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly 1 article fetch, got %d", calls)
	}
}
