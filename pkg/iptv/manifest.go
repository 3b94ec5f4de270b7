package iptv

import (
	"net/url"
	"path"
	"strings"
)

// RewriteManifest rewrites every playable URI in an HLS manifest to route
// through the local proxy at proxyPrefix (e.g. "/api/livetv/stream/acct/ch/"),
// resolving relative URLs against baseURL and URL-encoding absolute,
// off-origin URLs as a single path segment.
func RewriteManifest(manifest, baseURL, proxyPrefix string) string {
	lines := strings.Split(manifest, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(trimmed, "#EXT-X-KEY") || strings.HasPrefix(trimmed, "#EXT-X-MAP") || strings.HasPrefix(trimmed, "#EXT-X-MEDIA"):
			lines[i] = rewriteURIAttr(trimmed, baseURL, proxyPrefix)
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			// comment or tag with no embedded URI
		default:
			lines[i] = proxify(trimmed, baseURL, proxyPrefix)
		}
	}
	return strings.Join(lines, "\n")
}

func rewriteURIAttr(line, baseURL, proxyPrefix string) string {
	const marker = `URI="`
	idx := strings.Index(line, marker)
	if idx == -1 {
		return line
	}
	start := idx + len(marker)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}
	uri := line[start : start+end]
	rewritten := proxify(uri, baseURL, proxyPrefix)
	return line[:start] + rewritten + line[start+end:]
}

func proxify(target, baseURL, proxyPrefix string) string {
	resolved := resolveURL(target, baseURL)
	base, err := url.Parse(baseURL)
	if err == nil {
		if u, err2 := url.Parse(resolved); err2 == nil && u.Scheme != "" && u.Host != "" {
			if u.Scheme == base.Scheme && u.Host == base.Host {
				return strings.TrimRight(proxyPrefix, "/") + "/" + path.Base(u.Path) + suffix(u)
			}
			return strings.TrimRight(proxyPrefix, "/") + "/" + url.QueryEscape(resolved)
		}
	}
	return strings.TrimRight(proxyPrefix, "/") + "/" + strings.TrimLeft(resolved, "/")
}

func suffix(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

func resolveURL(target, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return target
	}
	rel, err := url.Parse(target)
	if err != nil {
		return target
	}
	return base.ResolveReference(rel).String()
}

// ContentTypes that indicate an HLS manifest body rather than media.
var hlsContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// IsHLSContentType reports whether ct (as returned in a Content-Type header,
// ignoring any charset/parameters) indicates an HLS manifest.
func IsHLSContentType(ct string) bool {
	base := ct
	if idx := strings.IndexByte(ct, ';'); idx != -1 {
		base = ct[:idx]
	}
	return hlsContentTypes[strings.TrimSpace(strings.ToLower(base))]
}
