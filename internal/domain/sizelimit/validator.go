// Package sizelimit enforces request body and header size ceilings before a
// request reaches route lookup (spec component C5).
package sizelimit

import (
	"fmt"
	"net/http"
)

// Config holds the three independent limits enforced by Validator. A zero
// value for any field disables that particular check.
type Config struct {
	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64
	// MaxHeaderSize is the maximum allowed size, in bytes, of a single
	// "name: value" header entry.
	MaxHeaderSize int64
	// MaxTotalHeadersSize is the maximum allowed combined size, in bytes,
	// of all header entries.
	MaxTotalHeadersSize int64
}

// Violation describes which limit was exceeded, with the HTTP status an
// adapter should render.
type Violation struct {
	Reason          string
	SuggestedStatus int
}

func (v *Violation) Error() string {
	return v.Reason
}

// Validator checks a request's body and header sizes against Config. Checks
// run in a fixed order — body, then each header, then the header total —
// and the first failure terminates validation.
type Validator struct {
	cfg Config
}

// New creates a Validator for cfg.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks bodySize (the Content-Length, or the actual buffered size
// if the body was already read) and headers against the configured limits.
// It returns nil when the request passes, or a *Violation naming the first
// limit exceeded.
func (v *Validator) Validate(bodySize int64, headers http.Header) *Violation {
	if v.cfg.MaxBodySize > 0 && bodySize > v.cfg.MaxBodySize {
		return &Violation{
			Reason:          fmt.Sprintf("request body of %d bytes exceeds limit of %d bytes", bodySize, v.cfg.MaxBodySize),
			SuggestedStatus: http.StatusRequestEntityTooLarge,
		}
	}

	var total int64
	for name, values := range headers {
		for _, value := range values {
			entrySize := int64(len(name) + len(": ") + len(value))
			if v.cfg.MaxHeaderSize > 0 && entrySize > v.cfg.MaxHeaderSize {
				return &Violation{
					Reason:          fmt.Sprintf("header %q of %d bytes exceeds limit of %d bytes", name, entrySize, v.cfg.MaxHeaderSize),
					SuggestedStatus: http.StatusRequestHeaderFieldsTooLarge,
				}
			}
			total += entrySize
		}
	}

	if v.cfg.MaxTotalHeadersSize > 0 && total > v.cfg.MaxTotalHeadersSize {
		return &Violation{
			Reason:          fmt.Sprintf("total header size of %d bytes exceeds limit of %d bytes", total, v.cfg.MaxTotalHeadersSize),
			SuggestedStatus: http.StatusRequestHeaderFieldsTooLarge,
		}
	}

	return nil
}
