// Package filetype maps file names, URLs and MIME types onto a closed set of
// categories and extensions. Nothing outside the tables below is ever returned,
// so attacker-controlled URLs cannot smuggle arbitrary suffixes onto disk.
package filetype

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category selects a default storage directory. It is not an extension.
type Category string

const (
	Image    Category = "image"
	Video    Category = "video"
	Document Category = "document"
	Other    Category = "other"
)

// SniffLen is how many leading body bytes Sniff needs.
const SniffLen = 3072

var categoryByExt = map[string]Category{
	".jpg": Image, ".jpeg": Image, ".png": Image, ".gif": Image,
	".webp": Image, ".bmp": Image, ".svg": Image,

	".mp4": Video, ".avi": Video, ".mov": Video, ".mkv": Video,
	".webm": Video, ".flv": Video,

	".pdf": Document, ".doc": Document, ".docx": Document, ".xls": Document,
	".xlsx": Document, ".ppt": Document, ".pptx": Document, ".txt": Document,
	".zip": Document, ".rar": Document,
}

// audio is accepted from URLs and MIME types but has no category of its own
var audioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".ogg": {},
}

var extByMIME = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",

	"video/mp4":       ".mp4",
	"video/avi":       ".avi",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"video/webm":      ".webm",

	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain":                   ".txt",
	"application/zip":              ".zip",
	"application/x-rar-compressed": ".rar",

	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/flac": ".flac",
	"audio/ogg":  ".ogg",
}

// ParseCategory converts a user supplied category name.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case Image, Video, Document, Other:
		return c, true
	default:
		return Other, false
	}
}

// Classify returns the category implied by the filename extension.
func Classify(filename string) Category {
	if c, ok := categoryByExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return c
	}
	return Other
}

// HasExtension reports whether filename already carries an extension.
func HasExtension(filename string) bool {
	return filepath.Ext(filename) != ""
}

// ExtensionFromURL returns the extension of the URL path (query ignored),
// or "" when it is absent or not a known extension.
func ExtensionFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if known(ext) {
		return ext
	}
	return ""
}

// ExtensionFromContentType maps a Content-Type header value to an extension.
func ExtensionFromContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return extByMIME[strings.ToLower(strings.TrimSpace(mediaType))]
}

// IsGeneric reports whether a Content-Type header says nothing useful about the payload.
func IsGeneric(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "", "application/octet-stream", "binary/octet-stream", "application/unknown":
		return true
	default:
		return false
	}
}

// Sniff detects the payload type from its leading bytes and maps it through the
// same closed MIME table.
func Sniff(head []byte) string {
	if len(head) == 0 {
		return ""
	}
	return ExtensionFromContentType(mimetype.Detect(head).String())
}

// ResolveName appends the URL-derived extension when filename has none.
// Content-Type based inference happens later, once response headers are known.
func ResolveName(filename, rawURL string) string {
	if HasExtension(filename) {
		return filename
	}
	return filename + ExtensionFromURL(rawURL)
}

func known(ext string) bool {
	if ext == "" {
		return false
	}
	if _, ok := categoryByExt[ext]; ok {
		return true
	}
	_, ok := audioExts[ext]
	return ok
}
