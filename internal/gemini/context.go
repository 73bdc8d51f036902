package gemini

import "context"

// Context is assembled by the router for each request and handed to the
// matched Resource. Path is already prefix-stripped and safety-normalized
// by the time a Resource sees it.
type Context struct {
	// Ctx carries cancellation and deadlines through any suspension point
	// a Resource performs (file reads, CGI subprocess wait).
	Ctx context.Context

	// Host is the original request authority (as written by the client).
	Host string
	// OrigPath is the full, unmodified request path.
	OrigPath string
	// Path is OrigPath with the matched mount prefix stripped.
	Path string
	// Query is the URL query string, if any.
	Query string

	Conn *Connection
}
