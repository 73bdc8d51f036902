package fsres

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/an-empty-string/amethyst/internal/gemini"
	"github.com/an-empty-string/amethyst/internal/resource"
)

func init() {
	resource.MustRegister("filesystem", newFromConfig)
}

// config is FilesystemResource's decoded mount configuration.
type config struct {
	Root            string `resource:"root"`
	CGI             bool   `resource:"cgi"`
	DefaultMIMEType string `resource:"default_mime_type"`
}

func (c *config) ApplyDefaults() {
	if c.DefaultMIMEType == "" {
		c.DefaultMIMEType = gemini.DefaultMIMEType
	}
}

func newFromConfig(args map[string]any, logger *slog.Logger) (gemini.Resource, error) {
	var cfg config
	if err := resource.Decode(args, &cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, errors.New("fsres: \"root\" is required")
	}
	return New(cfg.Root, cfg.CGI, cfg.DefaultMIMEType, logger)
}

// FilesystemResource resolves a request path against a document root,
// subject to directory-traversal safety, .meta-driven configuration,
// directory indexing, and (when enabled at the mount) CGI execution.
type FilesystemResource struct {
	root            string
	cgiEligible     bool
	defaultMIMEType string
	logger          *slog.Logger
}

// New builds a FilesystemResource rooted at root (canonicalized to an
// absolute path). cgiEligible is the mount-level switch from spec.md
// §4.5; a file still needs cgi=true in its effective .meta and the
// execute bit set before it is actually run as CGI.
func New(root string, cgiEligible bool, defaultMIMEType string, logger *slog.Logger) (*FilesystemResource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if defaultMIMEType == "" {
		defaultMIMEType = gemini.DefaultMIMEType
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemResource{
		root:            abs,
		cgiEligible:     cgiEligible,
		defaultMIMEType: defaultMIMEType,
		logger:          logger.With("resource", "filesystem", "root", abs),
	}, nil
}

func (r *FilesystemResource) Handle(ctx *gemini.Context) gemini.Response {
	components, err := gemini.NormalizePath(ctx.Path)
	if err != nil {
		return gemini.Fail(gemini.BadRequest, "Invalid path")
	}
	if len(components) > 0 && components[len(components)-1] == ".meta" {
		return gemini.Fail(gemini.NotFound, "%s was not found on this server.", ctx.OrigPath)
	}

	found, err := findPath(r.root, components)
	if err != nil {
		if errors.Is(err, ErrOutsideRoot) {
			r.logger.Warn("resolved path escaped root", "path", ctx.Path)
			return gemini.Fail(gemini.BadRequest, "Invalid path")
		}
		r.logger.Error("path resolution failed", "path", ctx.Path, "error", err)
		return gemini.Fail(gemini.TemporaryFailure, "Internal error")
	}

	scriptComponents := components[:len(components)-len(found.extra)]

	switch found.kind {
	case kindDir:
		if len(found.extra) > 0 {
			// The directory exists, but the remaining path components
			// don't name anything under it: there is no script here to
			// attach them to as PATH_INFO.
			return gemini.Fail(gemini.NotFound, "%s was not found on this server.", ctx.OrigPath)
		}
		return r.handleDirectory(ctx, found, scriptComponents)
	case kindFile:
		return r.handleFile(ctx, found.path, scriptComponents, found.extra)
	default:
		return gemini.Fail(gemini.NotFound, "%s was not found on this server.", ctx.OrigPath)
	}
}

func (r *FilesystemResource) handleDirectory(ctx *gemini.Context, found resolved, scriptComponents []string) gemini.Response {
	meta, err := resolveMeta(r.root, found.path, "")
	if err != nil {
		r.logger.Error("meta resolution failed", "dir", found.path, "error", err)
		return gemini.Fail(gemini.TemporaryFailure, "Internal error")
	}

	indexPath := filepath.Join(found.path, *meta.Index)
	if info, err := os.Stat(indexPath); err == nil && !info.IsDir() {
		return r.handleFile(ctx, indexPath, scriptComponents, nil)
	}

	if meta.Autoindex != nil && *meta.Autoindex {
		return r.autoindex(ctx, found.path)
	}

	return gemini.Fail(gemini.NotFound, "%s was not found on this server.", ctx.OrigPath)
}

func (r *FilesystemResource) autoindex(ctx *gemini.Context, dir string) gemini.Response {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Error("autoindex failed", "dir", dir, "error", err)
		return gemini.Fail(gemini.TemporaryFailure, "Internal error")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".meta" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Directory listing of ")
	b.WriteString(ctx.OrigPath)
	b.WriteString("\n\n")
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		b.WriteString("=> ")
		b.WriteString(name)
		if err == nil && info.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}

	return gemini.OK("text/gemini", []byte(b.String()))
}

func (r *FilesystemResource) handleFile(ctx *gemini.Context, path string, scriptComponents, pathInfo []string) gemini.Response {
	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	if filename == ".meta" {
		return gemini.Fail(gemini.NotFound, "%s was not found on this server.", ctx.OrigPath)
	}

	meta, err := resolveMeta(r.root, dir, filename)
	if err != nil {
		r.logger.Error("meta resolution failed", "path", path, "error", err)
		return gemini.Fail(gemini.TemporaryFailure, "Internal error")
	}

	if r.cgiEligible && meta.CGI != nil && *meta.CGI && isExecutable(path) {
		return r.runCGI(ctx, path, scriptComponents, pathInfo)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		r.logger.Error("failed to read file", "path", path, "error", err)
		return gemini.Fail(gemini.TemporaryFailure, "Internal error")
	}

	mimeType := r.defaultMIMEType
	if meta.MIMEType != nil {
		mimeType = *meta.MIMEType
	} else if guessed, ok := gemini.DefaultGuesser(filename); ok {
		mimeType = guessed
	}

	return gemini.OK(mimeType, contents)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
