package gemini

import "fmt"

// MaxMetaBytes is the largest a response's meta line may be, per spec.
const MaxMetaBytes = 1024

// Response is what a Resource returns: a status, a meta line, and an
// optional body. Body is only meaningful when Status.IsSuccess(); the
// writer never emits it otherwise.
type Response struct {
	Status Status
	Meta   string
	Body   []byte
}

// NewResponse builds a Response, truncating Meta defensively if a caller
// ever hands us something absurd (this should not happen in practice;
// resources are expected to produce short meta strings).
func NewResponse(status Status, meta string, body []byte) Response {
	if len(meta) > MaxMetaBytes {
		meta = meta[:MaxMetaBytes]
	}
	return Response{Status: status, Meta: meta, Body: body}
}

// OK builds a 20 response with the given MIME type and body.
func OK(mimeType string, body []byte) Response {
	return NewResponse(Success, mimeType, body)
}

// Redirect builds a 30 (temporary) or 31 (permanent) response.
func Redirect(to string, permanent bool) Response {
	if permanent {
		return NewResponse(RedirectPermanent, to, nil)
	}
	return NewResponse(RedirectTemporary, to, nil)
}

// Fail builds a non-success response with a formatted meta message.
func Fail(status Status, format string, args ...any) Response {
	return NewResponse(status, fmt.Sprintf(format, args...), nil)
}
