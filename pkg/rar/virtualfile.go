package rar

import (
	"context"
	"io"

	"nzbengine/pkg/nzb"
	"nzbengine/pkg/stream"
)

// VolumeSource supplies the underlying NZB file backing one RAR volume, and
// a way to stream an arbitrary byte range out of it.
type VolumeSource struct {
	NzbFile    *nzb.File
	ArticleGet stream.ArticleFetcher
}

// VirtualFile is a seekable reader over one AssembledFile: for each logical
// read it locates the overlapping spans, and for each span opens a ranged
// NzbSeekableStream over that span's backing volume.
type VirtualFile struct {
	ctx           context.Context
	file          *AssembledFile
	volumes       []VolumeSource
	prefetchCount int

	end     int64 // requested logical end, inclusive; held across span transitions
	pos     int64
	spanIdx int
	cur     *stream.NzbSeekableStream
}

// NewVirtualFile builds a reader starting at logical offset start (inclusive)
// through end (inclusive); volumes[i] must correspond to Span.VolumeIndex==i.
func NewVirtualFile(ctx context.Context, af *AssembledFile, volumes []VolumeSource, start, end int64, prefetchCount int) (*VirtualFile, error) {
	vf := &VirtualFile{
		ctx:           ctx,
		file:          af,
		volumes:       volumes,
		prefetchCount: prefetchCount,
		end:           end,
		pos:           start,
	}
	spans := FindSpansForRange(af, start, end)
	if len(spans) == 0 {
		return vf, nil
	}
	vf.file = &AssembledFile{Name: af.Name, Size: af.Size, Spans: spans}
	if err := vf.openSpan(0, start, end); err != nil {
		return nil, err
	}
	return vf, nil
}

func (vf *VirtualFile) openSpan(idx int, logicalStart, logicalEnd int64) error {
	span := vf.file.Spans[idx]
	src := vf.volumes[span.VolumeIndex]

	spanStartInVolume := span.VolumeOffset
	offsetIntoSpan := logicalStart - span.FileOffset
	rangeStart := spanStartInVolume + offsetIntoSpan

	spanLastLogical := span.FileOffset + span.Size - 1
	readToLogical := logicalEnd
	if spanLastLogical < readToLogical {
		readToLogical = spanLastLogical
	}
	rangeEnd := spanStartInVolume + (readToLogical - span.FileOffset)

	rng := &stream.ByteRange{Start: rangeStart, End: rangeEnd}
	s, err := stream.NewNzbSeekableStream(vf.ctx, src.NzbFile, src.ArticleGet, rng, vf.prefetchCount)
	if err != nil {
		return err
	}
	vf.spanIdx = idx
	vf.cur = s
	return nil
}

// Read implements io.Reader across span boundaries.
func (vf *VirtualFile) Read(p []byte) (int, error) {
	if vf.cur == nil {
		return 0, io.EOF
	}
	n, err := vf.cur.Read(p)
	if n > 0 {
		vf.pos += int64(n)
	}
	if err == io.EOF {
		vf.cur.Close()
		if vf.spanIdx+1 >= len(vf.file.Spans) {
			vf.cur = nil
			return n, io.EOF
		}
		next := vf.file.Spans[vf.spanIdx+1]
		if opErr := vf.openSpan(vf.spanIdx+1, next.FileOffset, vf.end); opErr != nil {
			return n, opErr
		}
		return n, nil
	}
	return n, err
}

// Close releases the currently open underlying stream.
func (vf *VirtualFile) Close() error {
	if vf.cur != nil {
		return vf.cur.Close()
	}
	return nil
}
