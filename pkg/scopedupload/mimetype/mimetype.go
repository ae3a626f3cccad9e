// Package mimetype maps file names to content types by extension.
package mimetype

import (
	"mime"
	"path"
	"strings"
)

// DefaultContentType is used by callers when Lookup finds nothing.
const DefaultContentType = "application/octet-stream"

// Common image and document types are pinned so the result does not depend on
// the host's mime.types files.
var known = map[string]string{
	".avif": "image/avif",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
	".heic": "image/heic",
	".ico":  "image/x-icon",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".json": "application/json",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// Lookup returns the content type for fileName, or "" when the extension is unknown.
func Lookup(fileName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(fileName, `\`, "/")))
	if ext == "" {
		return ""
	}
	if ct, ok := known[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// LookupOrDefault is Lookup with DefaultContentType as fallback.
func LookupOrDefault(fileName string) string {
	if ct := Lookup(fileName); ct != "" {
		return ct
	}
	return DefaultContentType
}
