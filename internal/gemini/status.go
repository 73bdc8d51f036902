// Package gemini implements the core data types of the Gemini protocol:
// status codes, responses, path normalization, MIME resolution, and the
// request router.
package gemini

import "fmt"

// Status is a two-digit Gemini response status code.
type Status int

const (
	Input                     Status = 10
	SensitiveInput            Status = 11
	Success                   Status = 20
	RedirectTemporary         Status = 30
	RedirectPermanent         Status = 31
	TemporaryFailure          Status = 40
	ServerUnavailable         Status = 41
	CGIError                  Status = 42
	ProxyError                Status = 43
	SlowDown                  Status = 44
	PermanentFailure          Status = 50
	NotFound                  Status = 51
	Gone                      Status = 52
	ProxyRequestRefused       Status = 53
	BadRequest                Status = 59
	ClientCertificateRequired Status = 60
	CertificateNotAuthorized  Status = 61
	CertificateNotValid       Status = 62
)

var statusNames = map[Status]string{
	Input:                     "INPUT",
	SensitiveInput:            "SENSITIVE_INPUT",
	Success:                   "SUCCESS",
	RedirectTemporary:         "REDIRECT_TEMPORARY",
	RedirectPermanent:         "REDIRECT_PERMANENT",
	TemporaryFailure:          "TEMPORARY_FAILURE",
	ServerUnavailable:         "SERVER_UNAVAILABLE",
	CGIError:                  "CGI_ERROR",
	ProxyError:                "PROXY_ERROR",
	SlowDown:                  "SLOW_DOWN",
	PermanentFailure:          "PERMANENT_FAILURE",
	NotFound:                  "NOT_FOUND",
	Gone:                      "GONE",
	ProxyRequestRefused:       "PROXY_REQUEST_REFUSED",
	BadRequest:                "BAD_REQUEST",
	ClientCertificateRequired: "CLIENT_CERTIFICATE_REQUIRED",
	CertificateNotAuthorized:  "CERTIFICATE_NOT_AUTHORIZED",
	CertificateNotValid:       "CERTIFICATE_NOT_VALID",
}

// IsSuccess reports whether the status is in the 2x range.
func (s Status) IsSuccess() bool {
	return s >= 20 && s <= 29
}

// Name returns the status's symbolic name, or "UNKNOWN" if unrecognized.
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether s is one of the known status codes.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	return fmt.Sprintf("%d[%s]", int(s), s.Name())
}
