package nzb

import "nzbengine/pkg/apperrors"

// Interpolator maps byte offsets within one File to (segment, offset-in-
// segment), starting from NZB-declared sizes and refining as segments are
// actually decoded (declared sizes are wire estimates, not exact).
type Interpolator struct {
	file       *File
	cumulative []int64 // cumulative[i] = offset of start of segment i
	actual     []bool  // whether cumulative[i+1] reflects a decoded (authoritative) size
	total      int64
}

// NewInterpolator builds the initial estimate from declared segment sizes.
func NewInterpolator(f *File) *Interpolator {
	in := &Interpolator{
		file:       f,
		cumulative: make([]int64, len(f.Segments)+1),
		actual:     make([]bool, len(f.Segments)+1),
	}
	var off int64
	for i, seg := range f.Segments {
		in.cumulative[i] = off
		off += seg.Bytes
	}
	in.cumulative[len(f.Segments)] = off
	in.actual[0] = true
	in.total = off
	return in
}

// Location identifies a byte offset within a specific segment.
type Location struct {
	SegmentIndex    int
	OffsetInSegment int64
	Segment         Segment
}

// FindSegmentForOffset maps a logical byte offset to its segment, returning
// InvalidRange when out of bounds. An offset exactly at total size resolves
// to the end of the last segment.
func (in *Interpolator) FindSegmentForOffset(b int64) (*Location, error) {
	if b < 0 || b > in.total {
		return nil, &apperrors.InvalidRange{Header: "offset out of bounds"}
	}
	if len(in.file.Segments) == 0 {
		return nil, &apperrors.InvalidRange{Header: "no segments"}
	}
	if b == in.total {
		last := len(in.file.Segments) - 1
		return &Location{
			SegmentIndex:    last,
			OffsetInSegment: in.cumulative[last+1] - in.cumulative[last],
			Segment:         in.file.Segments[last],
		}, nil
	}

	lo, hi := 0, len(in.file.Segments)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if in.cumulative[mid] <= b {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return &Location{
		SegmentIndex:    lo,
		OffsetInSegment: b - in.cumulative[lo],
		Segment:         in.file.Segments[lo],
	}, nil
}

// UpdateDecodedSize records the actual decoded byte length for segment i and
// recomputes cumulative offsets for every subsequent slot. Offsets for
// segments that have themselves been decoded stay authoritative; later ones
// shift by the estimate/actual delta.
func (in *Interpolator) UpdateDecodedSize(i int, actualSize int64) {
	if i < 0 || i >= len(in.file.Segments) {
		return
	}
	declared := in.file.Segments[i].Bytes
	delta := actualSize - declared
	in.actual[i+1] = true
	for j := i + 1; j <= len(in.file.Segments); j++ {
		in.cumulative[j] += delta
	}
	in.total = in.cumulative[len(in.file.Segments)]
}

// Range is an inclusive segment span covering a logical byte range.
type Range struct {
	StartIndex  int
	EndIndex    int
	StartOffset int64
	EndLimit    int64 // exclusive limit within EndIndex's segment
}

// GetSegmentRange resolves an inclusive [start, end] logical byte range into
// the segments and offsets needed to satisfy it.
func (in *Interpolator) GetSegmentRange(start, end int64) (*Range, error) {
	startLoc, err := in.FindSegmentForOffset(start)
	if err != nil {
		return nil, err
	}
	endLoc, err := in.FindSegmentForOffset(end)
	if err != nil {
		return nil, err
	}
	return &Range{
		StartIndex:  startLoc.SegmentIndex,
		EndIndex:    endLoc.SegmentIndex,
		StartOffset: startLoc.OffsetInSegment,
		EndLimit:    endLoc.OffsetInSegment + 1,
	}, nil
}

// TotalSize returns the interpolator's current best estimate of file size.
func (in *Interpolator) TotalSize() int64 { return in.total }
