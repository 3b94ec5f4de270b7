// Package stream implements a seekable byte stream over one NZB file with
// HTTP Range semantics, backed by a segment prefetch buffer.
package stream

import (
	"strconv"
	"strings"
)

// ByteRange is an inclusive logical byte range; End == -1 means open-ended
// (to end of file).
type ByteRange struct {
	Start int64
	End   int64
}

// ParseRange parses a `Range: bytes=...` header value for one of the three
// forms `S-E`, `S-`, `-N` (suffix length). Any malformed or out-of-bounds
// input is treated as "no range" (full content), per §4.7.
func ParseRange(header string, totalSize int64) (*ByteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(header, prefix)
	// Only the first range in a multi-range header is honored.
	if idx := strings.IndexByte(spec, ','); idx >= 0 {
		spec = spec[:idx]
	}
	spec = strings.TrimSpace(spec)

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, false
		}
		start := totalSize - n
		if start < 0 {
			start = 0
		}
		return &ByteRange{Start: start, End: totalSize - 1}, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= totalSize {
		return nil, false
	}

	if endStr == "" {
		return &ByteRange{Start: start, End: -1}, true
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, false
	}
	return &ByteRange{Start: start, End: end}, true
}

// Resolve clamps an open-ended range to the file's actual size.
func (r ByteRange) Resolve(totalSize int64) ByteRange {
	end := r.End
	if end == -1 || end > totalSize-1 {
		end = totalSize - 1
	}
	return ByteRange{Start: r.Start, End: end}
}
