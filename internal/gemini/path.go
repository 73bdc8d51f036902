package gemini

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned when a URL path tries to traverse above its root.
var ErrInvalidPath = errors.New("path tried to traverse above root")

// NormalizePath splits a URL path into a sequence of safe components,
// stripping "." and resolving ".." by popping the previous component. It
// fails with ErrInvalidPath if ".." would pop past the root. An empty
// input (or one consisting only of slashes) yields an empty slice,
// representing "/". This is the only sanctioned way to interpret
// client-supplied paths.
func NormalizePath(path string) ([]string, error) {
	raw := strings.Split(strings.Trim(path, "/"), "/")

	components := make([]string, 0, len(raw))
	for _, comp := range raw {
		switch comp {
		case "", ".":
			continue
		case "..":
			if len(components) == 0 {
				return nil, ErrInvalidPath
			}
			components = components[:len(components)-1]
		default:
			components = append(components, comp)
		}
	}

	return components, nil
}

// JoinPath renders normalized components back into a "/"-rooted path
// string. An empty component list renders as "/".
func JoinPath(components []string) string {
	return "/" + strings.Join(components, "/")
}
