package nzb

import (
	"strings"
	"testing"
)

const sampleNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file poster="poster@example.com" date="1700000000" subject="&quot;Some.Movie.2024.mkv&quot; yEnc (1/20)">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="500000" number="1">abc1@example</segment>
<segment bytes="500000" number="2">abc2@example</segment>
</segments>
</file>
<file poster="poster@example.com" date="1700000000" subject="&quot;Some.Movie.2024.part01.rar&quot; yEnc (1/50)">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="1000000" number="1">def1@example</segment>
</segments>
</file>
<file poster="poster@example.com" date="1700000000" subject="&quot;Some.Movie.2024.part02.rar&quot; yEnc (1/50)">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="1000000" number="1">ghi1@example</segment>
</segments>
</file>
</nzb>`

func TestParseBasic(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleNZB))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(p.Files))
	}
	if p.Hash == "" || len(p.Hash) != 64 {
		t.Fatalf("expected 64-char sha256 hash, got %q", p.Hash)
	}
	if len(p.MediaFiles) != 3 {
		t.Fatalf("expected 3 media files (1 video + 2 rar parts), got %d", len(p.MediaFiles))
	}
	if p.MediaFiles[0].IsRar {
		t.Fatalf("expected non-rar media file first, got %+v", p.MediaFiles[0])
	}
	if p.MediaFiles[1].RarPartNumber != 1 || p.MediaFiles[2].RarPartNumber != 2 {
		t.Fatalf("rar parts out of order: %+v %+v", p.MediaFiles[1], p.MediaFiles[2])
	}
}

func TestExtractFilenameQuoted(t *testing.T) {
	name := extractFilename(`"My.File.mkv" yEnc (1/1)`)
	if name != "My.File.mkv" {
		t.Fatalf("got %q", name)
	}
}

func TestExtractFilenameYencFallback(t *testing.T) {
	name := extractFilename(`Some post yEnc (3/10) My.File.mkv [1/1]`)
	if name != "My.File.mkv" {
		t.Fatalf("got %q", name)
	}
}

func TestExtractFilenameLastToken(t *testing.T) {
	name := extractFilename(`random subject no quotes movie.mkv trailing text`)
	if !strings.HasSuffix(name, ".mkv") {
		t.Fatalf("got %q", name)
	}
}

func TestClassifyRar(t *testing.T) {
	cases := map[string]int{
		"x.rar":         1,
		"x.r00":         1,
		"x.r01":         2,
		"x.part03.rar":  3,
		"x.001":         1,
		"x.mkv":         0,
	}
	for name, want := range cases {
		isRar, n := classifyRar(name)
		if want == 0 && isRar {
			t.Fatalf("%s: expected not rar", name)
		}
		if want != 0 && n != want {
			t.Fatalf("%s: expected part %d, got %d", name, want, n)
		}
	}
}
