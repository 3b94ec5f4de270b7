package stream

import (
	"context"
	"io"
	"testing"

	"nzbengine/pkg/nzb"
)

func testFile() *nzb.File {
	return &nzb.File{
		Name: "x.mkv",
		Segments: []nzb.Segment{
			{MessageID: "seg0", Number: 1, Bytes: 5},
			{MessageID: "seg1", Number: 2, Bytes: 5},
			{MessageID: "seg2", Number: 3, Bytes: 5},
		},
	}
}

func fakeFetch(segments map[string][]byte) ArticleFetcher {
	return func(ctx context.Context, messageID string) ([]byte, error) {
		return segments[messageID], nil
	}
}

func TestStreamReadsFullFile(t *testing.T) {
	fetch := fakeFetch(map[string][]byte{
		"seg0": []byte("aaaaa"),
		"seg1": []byte("bbbbb"),
		"seg2": []byte("ccccc"),
	})
	s, err := NewNzbSeekableStream(context.Background(), testFile(), fetch, nil, 1)
	if err != nil {
		t.Fatalf("NewNzbSeekableStream: %v", err)
	}
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "aaaaabbbbbccccc" {
		t.Fatalf("got %q", data)
	}
}

func TestStreamReadsPartialRange(t *testing.T) {
	fetch := fakeFetch(map[string][]byte{
		"seg0": []byte("aaaaa"),
		"seg1": []byte("bbbbb"),
		"seg2": []byte("ccccc"),
	})
	rng := &ByteRange{Start: 3, End: 11}
	s, err := NewNzbSeekableStream(context.Background(), testFile(), fetch, rng, 1)
	if err != nil {
		t.Fatalf("NewNzbSeekableStream: %v", err)
	}
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "aabbbbbcc" {
		t.Fatalf("got %q", data)
	}
}
