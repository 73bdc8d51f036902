package gemini

import (
	"strings"

	"golang.org/x/net/idna"
)

// normalizeHost lowercases and, for internationalized hostnames, converts
// to punycode (ASCII) form so a host configured in either Unicode or
// punycode form compares equal to a client request or SNI value in the
// other form. ASCII-only hosts (the overwhelming common case) pass
// through unchanged other than lowercasing.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return host
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	// Not a valid IDNA label (e.g. an IP literal) - use as-is.
	return host
}
