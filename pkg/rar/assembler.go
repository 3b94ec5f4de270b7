package rar

// Span is one contiguous slice of a logical (assembled) file living inside a
// single RAR volume.
type Span struct {
	VolumeIndex  int
	VolumeOffset int64
	FileOffset   int64
	Size         int64
}

// AssembledFile is one logical file reconstructed across one or more RAR
// volumes.
type AssembledFile struct {
	Name  string
	Size  int64
	Spans []Span
}

// Assemble walks ordered (by RarPartNumber) volumes and reconstructs every
// logical file that spans one or more of them, following RAR's
// continued-to-next-volume convention: a file continues into the next volume
// iff its last entry in the current volume was flagged continued, and the
// next volume's first entry shares its name.
func Assemble(volumes []*VolumeInfo) []AssembledFile {
	var out []AssembledFile
	consumedUpTo := make([]int, len(volumes)) // next unconsumed file index per volume

	for vi, vol := range volumes {
		for fi := consumedUpTo[vi]; fi < len(vol.Files); fi++ {
			entry := vol.Files[fi]
			if entry.ContinuedFromPrev {
				continue // already folded into a prior AssembledFile
			}

			af := AssembledFile{Name: entry.Name}
			af.Spans = append(af.Spans, Span{
				VolumeIndex:  vi,
				VolumeOffset: entry.DataOffset,
				FileOffset:   0,
				Size:         entry.CompressedSize,
			})
			af.Size += entry.CompressedSize

			cur := entry
			curVol, curFi := vi, fi
			for cur.ContinuedToNext && curVol+1 < len(volumes) {
				nextVol := volumes[curVol+1]
				if len(nextVol.Files) == 0 || nextVol.Files[0].Name != entry.Name {
					break
				}
				nextEntry := nextVol.Files[0]
				af.Spans = append(af.Spans, Span{
					VolumeIndex:  curVol + 1,
					VolumeOffset: nextEntry.DataOffset,
					FileOffset:   af.Size,
					Size:         nextEntry.CompressedSize,
				})
				af.Size += nextEntry.CompressedSize
				consumedUpTo[curVol+1] = 1
				cur = nextEntry
				curVol++
				curFi = 0
				_ = curFi
			}

			out = append(out, af)
		}
	}
	return out
}

// FindSpansForRange returns the ordered spans of af overlapping the
// inclusive logical byte range [start, end].
func FindSpansForRange(af *AssembledFile, start, end int64) []Span {
	var out []Span
	for _, s := range af.Spans {
		spanEnd := s.FileOffset + s.Size - 1
		if spanEnd < start || s.FileOffset > end {
			continue
		}
		out = append(out, s)
	}
	return out
}
