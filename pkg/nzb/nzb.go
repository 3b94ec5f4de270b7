// Package nzb parses NZB manifests into ordered file/segment lists and
// classifies media vs RAR-part content, per the wire format in §6.1.
package nzb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"nzbengine/pkg/apperrors"
)

// wire types, matching §6.1.

type xmlNzb struct {
	XMLName xml.Name  `xml:"nzb"`
	Files   []xmlFile `xml:"file"`
}

type xmlFile struct {
	Poster   string       `xml:"poster,attr"`
	Date     int64        `xml:"date,attr"`
	Subject  string       `xml:"subject,attr"`
	Groups   []string     `xml:"groups>group"`
	Segments []xmlSegment `xml:"segments>segment"`
}

type xmlSegment struct {
	Bytes  int64  `xml:"bytes,attr"`
	Number int    `xml:"number,attr"`
	ID     string `xml:",chardata"`
}

// Segment is one Usenet article reference. Immutable after parse.
type Segment struct {
	MessageID string
	Number    int
	Bytes     int64
}

// File is one NZB <file> entry with its ordered segments. Immutable.
type File struct {
	Index         int
	Name          string
	Poster        string
	Date          int64
	Subject       string
	Groups        []string
	Segments      []Segment
	Size          int64
	IsRar         bool
	RarPartNumber int // 0 when not a RAR part
}

// Parsed is the immutable result of parsing one NZB document.
type Parsed struct {
	Hash        string
	Files       []File
	MediaFiles  []File
	TotalSize   int64
	Groups      []string
}

// videoExts / audioExts mirror the media MIME table in §6.5.
var videoExts = map[string]bool{
	"mkv": true, "mp4": true, "avi": true, "mov": true, "wmv": true,
	"flv": true, "webm": true, "m4v": true, "mpg": true, "mpeg": true,
	"ts": true, "m2ts": true, "vob": true,
}

var audioExts = map[string]bool{
	"mp3": true, "flac": true, "aac": true, "ogg": true, "wav": true,
	"m4a": true, "wma": true,
}

var (
	reRarBare    = regexp.MustCompile(`(?i)\.rar$`)
	reRarRNN     = regexp.MustCompile(`(?i)\.r(\d{2})$`)
	reRarPartNum = regexp.MustCompile(`(?i)\.part(\d+)\.rar$`)
	reRarNNN     = regexp.MustCompile(`\.(\d{3})$`)

	reQuoted    = regexp.MustCompile(`"([^"]+)"`)
	reYencParen = regexp.MustCompile(`(?i)yEnc\s*\(\d+/\d+\)\s*(.+?)(?:\s*\[|$)`)
	reLastToken = regexp.MustCompile(`[^\s/\\]+\.[a-zA-Z0-9]{2,4}$`)
)

// Parse reads NZB XML bytes (charset-aware, since real-world feeds
// occasionally declare non-UTF-8 encodings) and returns the classified,
// sorted file list in §3/§4.5.
func Parse(r io.Reader) (*Parsed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &apperrors.MalformedNzb{Reason: err.Error()}
	}

	var doc xmlNzb
	decoder := xml.NewDecoder(strings.NewReader(string(raw)))
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&doc); err != nil {
		return nil, &apperrors.MalformedNzb{Reason: err.Error()}
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	groupSet := map[string]bool{}
	files := make([]File, 0, len(doc.Files))
	var totalSize int64

	for _, xf := range doc.Files {
		segments := make([]Segment, 0, len(xf.Segments))
		var size int64
		for _, xs := range xf.Segments {
			segments = append(segments, Segment{
				MessageID: strings.Trim(xs.ID, "<>"),
				Number:    xs.Number,
				Bytes:     xs.Bytes,
			})
			size += xs.Bytes
		}
		sort.Slice(segments, func(i, j int) bool { return segments[i].Number < segments[j].Number })

		subject := sanitizeUTF8(xf.Subject)
		name := extractFilename(subject)
		isRar, partNum := classifyRar(name)

		for _, g := range xf.Groups {
			groupSet[g] = true
		}

		files = append(files, File{
			Name:          name,
			Poster:        xf.Poster,
			Date:          xf.Date,
			Subject:       subject,
			Groups:        xf.Groups,
			Segments:      segments,
			Size:          size,
			IsRar:         isRar,
			RarPartNumber: partNum,
		})
		totalSize += size
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	for i := range files {
		files[i].Index = i
	}

	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	mediaFiles := selectMediaFiles(files)

	return &Parsed{
		Hash:       hash,
		Files:      files,
		MediaFiles: mediaFiles,
		TotalSize:  totalSize,
		Groups:     groups,
	}, nil
}

// selectMediaFiles implements §4.5: non-RAR media first (by name), then RAR
// parts ascending by RarPartNumber.
func selectMediaFiles(files []File) []File {
	var media, rar []File
	for _, f := range files {
		if f.IsRar {
			rar = append(rar, f)
			continue
		}
		if isMediaFile(f.Name) {
			media = append(media, f)
		}
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })
	sort.Slice(rar, func(i, j int) bool { return rar[i].RarPartNumber < rar[j].RarPartNumber })
	return append(media, rar...)
}

func isMediaFile(name string) bool {
	ext := extOf(name)
	return videoExts[ext] || audioExts[ext]
}

func extOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx == -1 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// classifyRar derives IsRar/RarPartNumber per §3: `.part<N>.rar → N`;
// `.r<NN> → NN+1`; `.<NNN> → NNN`; bare `.rar → 1`.
func classifyRar(name string) (bool, int) {
	if m := reRarPartNum.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return true, n
	}
	if m := reRarRNN.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return true, n + 1
	}
	if m := reRarNNN.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return true, n
	}
	if reRarBare.MatchString(name) {
		return true, 1
	}
	return false, 0
}

// extractFilename implements the four-step fallback chain in §4.5.
func extractFilename(subject string) string {
	if m := reQuoted.FindStringSubmatch(subject); m != nil {
		return m[1]
	}
	if m := reYencParen.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	fields := strings.Fields(subject)
	for i := len(fields) - 1; i >= 0; i-- {
		if m := reLastToken.FindString(fields[i]); m != "" {
			return m
		}
	}
	if len(subject) > 100 {
		return subject[:100]
	}
	return subject
}

// sanitizeUTF8 replaces invalid byte sequences so downstream filename
// extraction never trips over a malformed subject line from a non-UTF-8 feed.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	t := transform.Chain(norm.NFC, runes.ReplaceIllFormed())
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}
