// Package mount implements mount registration and range-request servicing:
// binding an NZB hash to a set of streamable files, and answering byte-range
// reads against them.
package mount

import (
	"strings"
	"time"
)

// Status is a mount's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Info is the external shape of one mount: an NZB bound to an id, with its
// classified media file list and lifecycle status.
type Info struct {
	ID           string    `json:"id"`
	NzbHash      string    `json:"nzbHash"`
	MediaFiles   []FileRef `json:"mediaFiles"`
	TotalSize    int64     `json:"totalSize"`
	Status       Status    `json:"status"`
	ErrorReason  string    `json:"errorReason,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
}

// FileRef is one streamable file within a mount, plain or RAR-assembled.
type FileRef struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	IsRarPart   bool   `json:"isRarPart"`
}

// contentTypes implements the media MIME table in §6.5.
var contentTypes = map[string]string{
	"mkv":  "video/x-matroska",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"wmv":  "video/x-ms-wmv",
	"flv":  "video/x-flv",
	"webm": "video/webm",
	"m4v":  "video/x-m4v",
	"mpg":  "video/mpeg",
	"mpeg": "video/mpeg",
	"ts":   "video/mp2t",
	"m2ts": "video/mp2t",
	"vob":  "video/dvd",
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
	"m4a":  "audio/x-m4a",
	"wma":  "audio/x-ms-wma",
}

// ContentTypeFor infers a MIME type from a filename extension, defaulting to
// application/octet-stream.
func ContentTypeFor(name string) string {
	ext := extOf(name)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

func extOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx == -1 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
