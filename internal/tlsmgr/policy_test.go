package tlsmgr

import (
	"path/filepath"
	"testing"
)

func TestLoadOrIssueSelfSignedReusesExisting(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	first, err := loadOrIssueSelfSigned([]string{"example.org"}, certPath, keyPath)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}

	second, err := loadOrIssueSelfSigned([]string{"example.org"}, certPath, keyPath)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if string(first.Certificate[0]) != string(second.Certificate[0]) {
		t.Errorf("expected unexpired certificate to be reused byte-for-byte")
	}
}

func TestLoadOrIssueSelfSignedRequiresHosts(t *testing.T) {
	dir := t.TempDir()
	_, err := loadOrIssueSelfSigned(nil, filepath.Join(dir, "c"), filepath.Join(dir, "k"))
	if err == nil {
		t.Fatal("expected error for empty hosts")
	}
}
