package yenc

import (
	"bytes"
	"testing"
)

// encode is a minimal test-only encoder used to build round-trip fixtures;
// it mirrors the inverse of decodeDataLines.
func encode(data []byte) []byte {
	var out bytes.Buffer
	for _, b := range data {
		enc := byte(int(b) + offset)
		switch enc {
		case 0x00, 0x0A, 0x0D, escapeByte:
			out.WriteByte(escapeByte)
			out.WriteByte(enc + 64)
		default:
			out.WriteByte(enc)
		}
	}
	return out.Bytes()
}

func buildArticle(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("=ybegin line=128 size=")
	buf.WriteString(itoa(len(payload)))
	buf.WriteString(" name=test.bin\r\n")
	buf.Write(encode(payload))
	buf.WriteString("\r\n=yend size=")
	buf.WriteString(itoa(len(payload)))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestDecodeRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog 0123456789")
	article := buildArticle(payload)

	dec, err := Decode(article)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec.Data, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", dec.Data, payload)
	}
	if dec.Header.Name != "test.bin" {
		t.Fatalf("header name = %q", dec.Header.Name)
	}
	if dec.Trailer.Size != int64(len(payload)) {
		t.Fatalf("trailer size = %d want %d", dec.Trailer.Size, len(payload))
	}
}

func TestDecodeMalformedNoHeader(t *testing.T) {
	_, err := Decode([]byte("not yenc at all\r\nmore garbage\r\n"))
	if err == nil {
		t.Fatal("expected error for missing =ybegin")
	}
}

func TestDecodeMultipart(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0x0A, 0x0D, 0x3D, 'x'}, 20)
	var buf bytes.Buffer
	buf.WriteString("=ybegin line=128 size=")
	buf.WriteString(itoa(len(payload)))
	buf.WriteString(" part=1 total=2 name=multi.bin\r\n")
	buf.WriteString("=ypart begin=1 end=")
	buf.WriteString(itoa(len(payload)))
	buf.WriteString("\r\n")
	buf.Write(encode(payload))
	buf.WriteString("\r\n=yend size=")
	buf.WriteString(itoa(len(payload)))
	buf.WriteString(" part=1 pcrc32=deadbeef\r\n")

	dec, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec.Data, payload) {
		t.Fatalf("multipart round trip mismatch")
	}
	if dec.Header.Begin != 1 || dec.Header.End != int64(len(payload)) {
		t.Fatalf("ypart begin/end not parsed: %+v", dec.Header)
	}
}

func TestExtractHeaderOnly(t *testing.T) {
	article := buildArticle([]byte("hello"))
	h, err := ExtractHeader(article)
	if err != nil {
		t.Fatalf("ExtractHeader: %v", err)
	}
	if h.Name != "test.bin" {
		t.Fatalf("name = %q", h.Name)
	}
}
