package tlsmgr

import (
	"crypto/x509"
	"strings"

	"golang.org/x/net/idna"
)

// normalizeHostKey mirrors internal/gemini's host normalization so a
// certificate registered under a Unicode hostname is found by an SNI
// value presented in punycode, and vice versa.
func normalizeHostKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return host
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func parseLeaf(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}
