package fsres

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMetaFileMissingIsEmpty(t *testing.T) {
	m, err := loadMetaFile(filepath.Join(t.TempDir(), ".meta"))
	if err != nil {
		t.Fatalf("loadMetaFile: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty metaFile, got %v", m)
	}
}

func TestLoadMetaFileSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".meta")
	content := "[.]\nautoindex = true\nindex = main.gmi\n\n[special.gmi]\nmime_type = text/plain\ncgi = true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := loadMetaFile(path)
	if err != nil {
		t.Fatalf("loadMetaFile: %v", err)
	}

	dot := m["."]
	if dot.Autoindex == nil || !*dot.Autoindex {
		t.Errorf("expected autoindex=true in \".\" section")
	}
	if dot.Index == nil || *dot.Index != "main.gmi" {
		t.Errorf("expected index=main.gmi in \".\" section")
	}

	special := m["special.gmi"]
	if special.MIMEType == nil || *special.MIMEType != "text/plain" {
		t.Errorf("expected mime_type override in special.gmi section")
	}
	if special.CGI == nil || !*special.CGI {
		t.Errorf("expected cgi=true in special.gmi section")
	}
}

func TestLoadMetaFileRecognizesMimeKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".meta")
	if err := os.WriteFile(path, []byte("[data.gmi]\nmime = text/x-custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := loadMetaFile(path)
	if err != nil {
		t.Fatalf("loadMetaFile: %v", err)
	}

	entry := m["data.gmi"]
	if entry.MIMEType == nil || *entry.MIMEType != "text/x-custom" {
		t.Errorf("expected mime override via \"mime\" key, got %v", entry.MIMEType)
	}
}

func TestResolveMetaDefaults(t *testing.T) {
	root := t.TempDir()
	meta, err := resolveMeta(root, root, "")
	if err != nil {
		t.Fatalf("resolveMeta: %v", err)
	}
	if meta.CGI == nil || *meta.CGI {
		t.Errorf("expected default cgi=false")
	}
	if meta.Autoindex == nil || *meta.Autoindex {
		t.Errorf("expected default autoindex=false")
	}
	if meta.Index == nil || *meta.Index != "index.gmi" {
		t.Errorf("expected default index=index.gmi")
	}
}

func TestResolveMetaPerFilenameSectionOnlyFromExact(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Ancestor .meta defines a per-filename section; it must NOT apply,
	// since per-filename sections only come from the exact directory.
	if err := os.WriteFile(filepath.Join(root, ".meta"), []byte("[leaf.gmi]\nmime_type = text/ignored\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := resolveMeta(root, sub, "leaf.gmi")
	if err != nil {
		t.Fatalf("resolveMeta: %v", err)
	}
	if meta.MIMEType != nil {
		t.Errorf("expected no mime_type override from ancestor's per-filename section, got %v", *meta.MIMEType)
	}
}
