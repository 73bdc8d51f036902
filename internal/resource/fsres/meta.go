package fsres

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// metaDefaultSection is the section name for directory-wide settings, both
// in an inherited .meta (its only meaningful section) and in the exact
// .meta (before any per-filename override is applied).
const metaDefaultSection = "."

// Meta is one layer of .meta settings. A nil field means "not set here"
// and never overrides a previous layer, per spec.md's merge rule.
type Meta struct {
	CGI       *bool
	Autoindex *bool
	Index     *string
	MIMEType  *string
}

// defaultMeta is the innermost layer every resolution starts from.
func defaultMeta() Meta {
	f, t := false, "index.gmi"
	return Meta{CGI: &f, Autoindex: &f, Index: &t}
}

// overlay returns m with every non-nil field of other applied on top.
func (m Meta) overlay(other Meta) Meta {
	if other.CGI != nil {
		m.CGI = other.CGI
	}
	if other.Autoindex != nil {
		m.Autoindex = other.Autoindex
	}
	if other.Index != nil {
		m.Index = other.Index
	}
	if other.MIMEType != nil {
		m.MIMEType = other.MIMEType
	}
	return m
}

// metaFile is a parsed .meta: section name -> its settings. The unnamed
// leading section (before any "[...]" header) is stored under
// metaDefaultSection.
type metaFile map[string]Meta

// loadMetaFile parses an INI-style .meta file. A missing file is not an
// error: it yields an empty metaFile, equivalent to "no overrides here".
func loadMetaFile(path string) (metaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return metaFile{}, nil
		}
		return nil, err
	}
	defer f.Close()

	result := make(metaFile)
	section := metaDefaultSection
	current := Meta{}

	flush := func() {
		if _, ok := result[section]; !ok {
			result[section] = Meta{}
		}
		result[section] = result[section].overlay(current)
		current = Meta{}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		key, value, ok := splitKV(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "cgi":
			if b, err := strconv.ParseBool(value); err == nil {
				current.CGI = &b
			}
		case "autoindex":
			if b, err := strconv.ParseBool(value); err == nil {
				current.Autoindex = &b
			}
		case "index":
			v := value
			current.Index = &v
		case "mime_type", "mimetype", "mime", "type":
			v := value
			current.MIMEType = &v
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, "=:")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// resolveMeta computes the effective Meta for a file (or directory) named
// filename inside dir, per spec.md §4.5's merge order: defaults, then the
// inherited chain from root down to dir's parent (root→leaf, closer to
// leaf wins), then the exact directory's "." section, then the exact
// directory's per-filename section if filename is non-empty.
func resolveMeta(root, dir, filename string) (Meta, error) {
	exact, err := loadMetaFile(filepath.Join(dir, ".meta"))
	if err != nil {
		return Meta{}, err
	}

	chain, err := inheritedChain(root, dir)
	if err != nil {
		return Meta{}, err
	}

	effective := defaultMeta()
	for _, m := range chain {
		effective = effective.overlay(m[metaDefaultSection])
	}
	effective = effective.overlay(exact[metaDefaultSection])
	if filename != "" {
		effective = effective.overlay(exact[filename])
	}
	return effective, nil
}

// inheritedChain collects every ancestor .meta of dir, from root down to
// (but not including) dir itself, in root→leaf order.
func inheritedChain(root, dir string) ([]metaFile, error) {
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)

	if dir == root {
		return nil, nil
	}

	var ancestors []string
	for cur := filepath.Dir(dir); ; cur = filepath.Dir(cur) {
		ancestors = append(ancestors, cur)
		if cur == root || cur == filepath.Dir(cur) {
			break
		}
	}
	// ancestors is leaf-to-root (nearest ancestor first); reverse for root→leaf.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}

	chain := make([]metaFile, 0, len(ancestors))
	for _, a := range ancestors {
		m, err := loadMetaFile(filepath.Join(a, ".meta"))
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}
	return chain, nil
}
