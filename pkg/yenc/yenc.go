// Package yenc decodes yEnc-encoded Usenet article bodies.
//
// yEnc is an 8-bit-clean binary-to-text encoding: every byte is shifted by a
// fixed offset, with a single escape byte for values that would otherwise
// collide with the line-oriented NNTP framing.
package yenc

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"nzbengine/pkg/apperrors"
)

const (
	escapeByte = 0x3D
	offset     = 42
)

// Header is the parsed =ybegin (+ optional =ypart) line.
type Header struct {
	Line  int
	Size  int64
	Part  int
	Total int
	Name  string
	Begin int64 // from =ypart, 0 if absent
	End   int64 // from =ypart, 0 if absent
}

// Trailer is the parsed =yend line.
type Trailer struct {
	Size   int64
	Part   int
	CRC32  string
	PCRC32 string
}

// Decoded is the result of decoding one article body.
type Decoded struct {
	Header  Header
	Trailer Trailer
	Data    []byte
}

var (
	reYBegin = regexp.MustCompile(`^=ybegin\s+line=(\d+)\s+size=(\d+)(?:\s+part=(\d+)\s+total=(\d+))?\s+name=(.+)$`)
	reYPart  = regexp.MustCompile(`^=ypart\s+begin=(\d+)\s+end=(\d+)`)
	reYEnd   = regexp.MustCompile(`^=yend\s+size=(\d+)(?:\s+part=(\d+))?(?:\s+pcrc32=([0-9a-fA-F]+))?(?:\s+crc32=([0-9a-fA-F]+))?`)
)

// Decode parses a full article body (as delivered by the NNTP BODY command,
// CRLF line endings, terminator already stripped) and returns the decoded
// payload plus header/trailer metadata.
func Decode(body []byte) (*Decoded, error) {
	lines := splitLines(body)

	headerIdx, header, err := findHeader(lines)
	if err != nil {
		return nil, err
	}

	dataStart := headerIdx + 1
	if header.Total > 0 {
		if dataStart >= len(lines) || !reYPart.Match(lines[dataStart]) {
			return nil, &apperrors.MalformedYenc{Reason: "missing =ypart line after multipart =ybegin"}
		}
		m := reYPart.FindSubmatch(lines[dataStart])
		header.Begin, _ = strconv.ParseInt(string(m[1]), 10, 64)
		header.End, _ = strconv.ParseInt(string(m[2]), 10, 64)
		dataStart++
	}

	trailerIdx, trailer, err := findTrailer(lines)
	if err != nil {
		return nil, err
	}
	if trailerIdx < dataStart {
		return nil, &apperrors.MalformedYenc{Reason: "=yend precedes data"}
	}

	data := decodeDataLines(lines[dataStart:trailerIdx])

	return &Decoded{Header: header, Trailer: trailer, Data: data}, nil
}

// ExtractHeader scans only the first 1 KiB of body for an =ybegin line,
// without decoding any data — used for lightweight diagnostics.
func ExtractHeader(body []byte) (*Header, error) {
	if len(body) > 1024 {
		body = body[:1024]
	}
	lines := splitLines(body)
	_, header, err := findHeader(lines)
	if err != nil {
		return nil, err
	}
	return &header, nil
}

func findHeader(lines [][]byte) (int, Header, error) {
	limit := 10
	if len(lines) < limit {
		limit = len(lines)
	}
	for i := 0; i < limit; i++ {
		if m := reYBegin.FindSubmatch(lines[i]); m != nil {
			h := Header{Name: string(m[5])}
			h.Line, _ = strconv.Atoi(string(m[1]))
			size, _ := strconv.ParseInt(string(m[2]), 10, 64)
			h.Size = size
			if len(m[3]) > 0 {
				h.Part, _ = strconv.Atoi(string(m[3]))
			}
			if len(m[4]) > 0 {
				h.Total, _ = strconv.Atoi(string(m[4]))
			}
			return i, h, nil
		}
	}
	return 0, Header{}, &apperrors.MalformedYenc{Reason: "no =ybegin line found in first 10 lines"}
}

func findTrailer(lines [][]byte) (int, Trailer, error) {
	start := len(lines) - 5
	if start < 0 {
		start = 0
	}
	for i := len(lines) - 1; i >= start; i-- {
		if m := reYEnd.FindSubmatch(lines[i]); m != nil {
			t := Trailer{}
			size, _ := strconv.ParseInt(string(m[1]), 10, 64)
			t.Size = size
			if len(m[2]) > 0 {
				t.Part, _ = strconv.Atoi(string(m[2]))
			}
			t.PCRC32 = string(m[3])
			t.CRC32 = string(m[4])
			return i, t, nil
		}
	}
	return 0, Trailer{}, &apperrors.MalformedYenc{Reason: "no =yend line found in last 5 lines"}
}

// decodeDataLines implements the byte-level algorithm in §4.1: strip CR/LF,
// unescape 0x3D-prefixed bytes, then subtract the fixed offset mod 256.
func decodeDataLines(lines [][]byte) []byte {
	out := make([]byte, 0, len(lines)*128)
	for _, line := range lines {
		i := 0
		for i < len(line) {
			b := line[i]
			if b == '\r' || b == '\n' {
				i++
				continue
			}
			if b == escapeByte {
				i++
				if i >= len(line) {
					break
				}
				b = line[i]
				out = append(out, byte(int(b)-64-offset))
			} else {
				out = append(out, byte(int(b)-offset))
			}
			i++
		}
	}
	return out
}

func splitLines(body []byte) [][]byte {
	return bytes.Split(body, []byte("\r\n"))
}

// VerifyCRC32 checks the decoded data against the trailer's crc32 (or
// pcrc32 for multipart segments), returning a descriptive error on mismatch.
// CRC verification is optional and non-fatal by design (see §4.1 edge cases);
// callers decide whether to log or ignore the result.
func VerifyCRC32(d *Decoded) error {
	want := d.Trailer.CRC32
	if d.Header.Total > 0 && d.Trailer.PCRC32 != "" {
		want = d.Trailer.PCRC32
	}
	if want == "" {
		return nil
	}
	got := crc32Hex(d.Data)
	if got != normalizeHex(want) {
		return fmt.Errorf("yenc crc32 mismatch: want %s got %s", want, got)
	}
	return nil
}
