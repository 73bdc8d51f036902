package gemini

// Resource is the single capability every handler implements: turn a
// request Context into a Response. Errors a Resource can anticipate
// (missing file, bad CGI exit, disallowed path) are represented as
// ordinary non-success Responses, not Go errors — only a genuinely
// unexpected panic should escape a Resource, and the connection server
// converts that into a TemporaryFailure response (spec §7's "Internal"
// error kind).
type Resource interface {
	Handle(ctx *Context) Response
}

// ResourceFunc adapts a plain function to the Resource interface.
type ResourceFunc func(ctx *Context) Response

func (f ResourceFunc) Handle(ctx *Context) Response { return f(ctx) }
