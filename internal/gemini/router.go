package gemini

import (
	"net/url"
	"strconv"
	"strings"
)

// Mount binds one path prefix, in normalized-component form, to a Resource.
type Mount struct {
	Prefix     []string
	PrefixPath string // original "/foo/bar" form as configured, for display (admin /debug/hosts)
	Resource   Resource
}

// HostRoute is the set of mounts served under one host.
type HostRoute struct {
	Host   string
	Mounts []Mount
}

// Router selects a Resource for a request URL by host, then longest
// component-wise path prefix. It is immutable once built by config load;
// reconfiguration replaces the whole Router rather than mutating it, so
// concurrent readers never observe a half-updated routing table.
type Router struct {
	Port  int
	Hosts map[string]*HostRoute // keyed by normalizeHost(host)
}

// NewRouter builds an (initially empty) router for the given listen port.
func NewRouter(port int) *Router {
	return &Router{Port: port, Hosts: make(map[string]*HostRoute)}
}

// AddHost registers a HostRoute, keyed by its normalized host.
func (r *Router) AddHost(hr *HostRoute) {
	r.Hosts[normalizeHost(hr.Host)] = hr
}

// Route parses rawURL, validates scheme/host/port, selects the
// longest-matching mount, and delegates to its Resource. It does not
// recover panics: a Resource panic propagates to the caller (the
// connection server), since recovery belongs to the layer that owns the
// connection's lifecycle.
func (r *Router) Route(ctx *Context, rawURL string) Response {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return Fail(BadRequest, "Invalid URL")
	}

	if u.Scheme != "gemini" {
		return Fail(ProxyRequestRefused, "This server does not proxy non-Gemini URLs.")
	}

	host := u.Host
	hostOnly := host
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		portStr := host[i+1:]
		if n, err := strconv.Atoi(portStr); err == nil {
			if n != r.Port {
				return Fail(ProxyRequestRefused, "%s is not served here.", host)
			}
			hostOnly = host[:i]
		}
	}

	hr, ok := r.Hosts[normalizeHost(hostOnly)]
	if !ok {
		return Fail(ProxyRequestRefused, "%s is not served here.", host)
	}

	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}

	components, err := NormalizePath(reqPath)
	if err != nil {
		return Fail(BadRequest, "Invalid path")
	}

	mount, remaining := selectMount(hr.Mounts, components)
	if mount == nil {
		return Fail(NotFound, "%s was not found on this server.", reqPath)
	}

	path := JoinPath(remaining)
	if strings.HasSuffix(reqPath, "/") && path != "/" {
		path += "/"
	}

	ctx.Host = host
	ctx.OrigPath = reqPath
	ctx.Path = path
	ctx.Query = u.RawQuery

	return mount.Resource.Handle(ctx)
}

// selectMount finds the mount whose Prefix is the longest component-wise
// prefix of components, returning the mount and the components remaining
// after stripping its prefix. Longest match is unique by length, as every
// candidate is by definition a prefix of the same path.
func selectMount(mounts []Mount, components []string) (*Mount, []string) {
	var best *Mount
	bestLen := -1

	for i := range mounts {
		m := &mounts[i]
		if len(m.Prefix) > len(components) {
			continue
		}
		if !isPrefixOf(m.Prefix, components) {
			continue
		}
		if len(m.Prefix) > bestLen {
			best = m
			bestLen = len(m.Prefix)
		}
	}

	if best == nil {
		return nil, nil
	}
	return best, components[bestLen:]
}

func isPrefixOf(prefix, full []string) bool {
	for i, p := range prefix {
		if full[i] != p {
			return false
		}
	}
	return true
}
