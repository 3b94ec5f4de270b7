package iptv

import (
	"strings"
	"testing"
)

func TestRewriteManifestRelativeSegments(t *testing.T) {
	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:10,\nseg0.ts\n#EXTINF:10,\nseg1.ts\n"
	out := RewriteManifest(manifest, "http://upstream.example/live/chan/index.m3u8", "/api/livetv/stream/acct1/chan1")

	if !strings.Contains(out, "/api/livetv/stream/acct1/chan1/seg0.ts") {
		t.Fatalf("expected rewritten seg0, got:\n%s", out)
	}
	if !strings.Contains(out, "/api/livetv/stream/acct1/chan1/seg1.ts") {
		t.Fatalf("expected rewritten seg1, got:\n%s", out)
	}
	if !strings.Contains(out, "#EXTM3U") {
		t.Fatalf("expected comments preserved, got:\n%s", out)
	}
}

func TestRewriteManifestOffOriginAbsoluteURL(t *testing.T) {
	manifest := "#EXTM3U\nhttp://other.example/seg.ts\n"
	out := RewriteManifest(manifest, "http://upstream.example/live/chan/index.m3u8", "/api/livetv/stream/acct1/chan1")
	if !strings.Contains(out, "/api/livetv/stream/acct1/chan1/") {
		t.Fatalf("expected proxy prefix, got:\n%s", out)
	}
}

func TestIsHLSContentType(t *testing.T) {
	cases := map[string]bool{
		"application/vnd.apple.mpegurl":        true,
		"application/vnd.apple.mpegurl;v=1":    true,
		"application/x-mpegurl":                true,
		"video/mp2t":                           false,
		"application/octet-stream":             false,
	}
	for ct, want := range cases {
		if got := IsHLSContentType(ct); got != want {
			t.Fatalf("%q: got %v want %v", ct, got, want)
		}
	}
}
