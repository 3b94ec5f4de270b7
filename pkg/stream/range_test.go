package stream

import "testing"

func TestParseRangeForms(t *testing.T) {
	const total = int64(1000)

	r, ok := ParseRange("bytes=100-199", total)
	if !ok || r.Start != 100 || r.End != 199 {
		t.Fatalf("S-E: got %+v ok=%v", r, ok)
	}

	r, ok = ParseRange("bytes=500-", total)
	if !ok || r.Start != 500 || r.End != -1 {
		t.Fatalf("S-: got %+v ok=%v", r, ok)
	}

	r, ok = ParseRange("bytes=-100", total)
	if !ok || r.Start != 900 || r.End != 999 {
		t.Fatalf("-N: got %+v ok=%v", r, ok)
	}
}

func TestParseRangeInvalid(t *testing.T) {
	const total = int64(1000)
	cases := []string{
		"bytes=abc-200",
		"bytes=2000-3000", // S >= totalSize
		"bytes=500-100",   // E < S
		"bytes=-0",        // N <= 0
		"nonsense",
	}
	for _, c := range cases {
		if _, ok := ParseRange(c, total); ok {
			t.Fatalf("%q: expected invalid", c)
		}
	}
}

func TestResolveClampsOpenEnd(t *testing.T) {
	r := ByteRange{Start: 10, End: -1}
	resolved := r.Resolve(100)
	if resolved.End != 99 {
		t.Fatalf("got %+v", resolved)
	}
}
