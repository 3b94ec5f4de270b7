package nzb

import "testing"

func testFile() *File {
	return &File{
		Segments: []Segment{
			{MessageID: "a", Number: 1, Bytes: 100},
			{MessageID: "b", Number: 2, Bytes: 100},
			{MessageID: "c", Number: 3, Bytes: 100},
		},
	}
}

func TestFindSegmentForOffset(t *testing.T) {
	in := NewInterpolator(testFile())

	loc, err := in.FindSegmentForOffset(0)
	if err != nil || loc.SegmentIndex != 0 || loc.OffsetInSegment != 0 {
		t.Fatalf("got %+v err=%v", loc, err)
	}

	loc, err = in.FindSegmentForOffset(150)
	if err != nil || loc.SegmentIndex != 1 || loc.OffsetInSegment != 50 {
		t.Fatalf("got %+v err=%v", loc, err)
	}

	loc, err = in.FindSegmentForOffset(300)
	if err != nil || loc.SegmentIndex != 2 || loc.OffsetInSegment != 100 {
		t.Fatalf("end of file: got %+v err=%v", loc, err)
	}

	if _, err := in.FindSegmentForOffset(-1); err == nil {
		t.Fatal("expected error for negative offset")
	}
	if _, err := in.FindSegmentForOffset(301); err == nil {
		t.Fatal("expected error for offset beyond total")
	}
}

func TestUpdateDecodedSizeShiftsSubsequent(t *testing.T) {
	in := NewInterpolator(testFile())
	in.UpdateDecodedSize(0, 120) // actual size 20 bytes bigger than declared

	loc, err := in.FindSegmentForOffset(110)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if loc.SegmentIndex != 0 || loc.OffsetInSegment != 110 {
		t.Fatalf("expected offset still in segment 0 after growth, got %+v", loc)
	}

	if in.TotalSize() != 320 {
		t.Fatalf("expected total 320, got %d", in.TotalSize())
	}
}

func TestGetSegmentRange(t *testing.T) {
	in := NewInterpolator(testFile())
	r, err := in.GetSegmentRange(50, 250)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if r.StartIndex != 0 || r.EndIndex != 2 {
		t.Fatalf("got %+v", r)
	}
	if r.StartOffset != 50 {
		t.Fatalf("got start offset %d", r.StartOffset)
	}
}
