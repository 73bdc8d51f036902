package gemini

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultMIMEType is used when no extension mapping, override, or guesser
// produces a result.
const DefaultMIMEType = "application/octet-stream"

// geminiExtensions are not in the standard library's MIME database and
// are resolved before falling back to it.
var geminiExtensions = map[string]string{
	".gmi":    "text/gemini",
	".gemini": "text/gemini",
}

// Guesser maps a filename to a MIME type, or returns ("", false) if it has
// no opinion. It is the sole contract a pluggable MIME guesser must meet.
type Guesser func(filename string) (string, bool)

// DefaultGuesser resolves Gemini's own text/gemini extension first, then
// falls back to the platform's standard extension database
// (mime.TypeByExtension), stripping any "; charset=..." parameters that
// package adds for text types.
func DefaultGuesser(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))

	if mt, ok := geminiExtensions[ext]; ok {
		return mt, true
	}

	if mt := mime.TypeByExtension(ext); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt, true
	}

	return "", false
}

// Resolve determines the MIME type for filename: an explicit override (from
// .meta) wins if present, else the guesser's opinion, else fallback.
func Resolve(filename string, override string, guess Guesser, fallback string) string {
	if override != "" {
		return override
	}
	if guess != nil {
		if mt, ok := guess(filename); ok {
			return mt
		}
	}
	if fallback != "" {
		return fallback
	}
	return DefaultMIMEType
}
