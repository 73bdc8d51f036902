package resource

import (
	"log/slog"
	"strings"

	"github.com/an-empty-string/amethyst/internal/gemini"
)

func init() {
	MustRegister("redirect", newRedirectResource)
}

// redirectConfig is RedirectResource's decoded config.
type redirectConfig struct {
	To        string `resource:"to"`
	Permanent bool   `resource:"permanent"`
}

// RedirectResource rewrites the request's post-mount path onto a new base
// and issues a 30 or 31 redirect to the result, so a mount can forward an
// entire subtree to another Gemini host or path rather than just one URL.
type RedirectResource struct {
	to        string
	permanent bool
}

// NewRedirectResource builds a RedirectResource directly (for tests and
// for composing resources in Go rather than through config).
func NewRedirectResource(to string, permanent bool) *RedirectResource {
	return &RedirectResource{to: to, permanent: permanent}
}

func newRedirectResource(args map[string]any, _ *slog.Logger) (gemini.Resource, error) {
	var cfg redirectConfig
	if err := Decode(args, &cfg); err != nil {
		return nil, err
	}
	return NewRedirectResource(cfg.To, cfg.Permanent), nil
}

func (r *RedirectResource) Handle(ctx *gemini.Context) gemini.Response {
	newPath := collapseSlashes("/" + ctx.Path)
	target := strings.TrimRight(r.to, "/") + newPath
	return gemini.Redirect(target, r.permanent)
}

// collapseSlashes replaces every run of slashes with a single slash,
// mirroring the Python original's "//" -> "/" string replace.
func collapseSlashes(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
