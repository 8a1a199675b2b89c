// Package apierror defines the request-admission error taxonomy shared by
// the hawkauth and web packages. Keeping it separate from web lets
// hawkauth report problems without importing the HTTP-handler package
// that in turn depends on hawkauth, avoiding an import cycle.
package apierror

import (
	"fmt"
	"net/http"
)

// Location identifies which part of the HTTP request a validation
// failure was found in -- carried on every RequestProblem for metrics and
// for the legacy client contract, which groups errors by location.
type Location string

const (
	LocationBody        Location = "body"
	LocationQueryString Location = "querystring"
	LocationURL         Location = "url"
	LocationHeader      Location = "header"
	LocationPath        Location = "path"
	LocationCookies     Location = "cookies"
	LocationMethod      Location = "method"
	LocationUnknown     Location = "unknown"
)

// Weave legacy error body codes. The Sync 1.5 wire contract replies with
// a bare integer string, not a structured body, unless a client opts into
// the richer RequestProblem JSON (see SPEC_FULL.md §9's open question on
// error body shape).
const (
	WeaveUnknownError  = "0"
	WeaveIllegalMeth   = "1"
	WeaveMalformedJSON = "6"
	WeaveInvalidWBO    = "8"
	WeaveOverQuota     = "14"
)

// RequestProblem is C12: every admission failure, from a malformed HAWK
// header down to a query-string validation error, is reported as one of
// these. It is attached to the Session (the per-request extension bag)
// so the logging middleware can report the metric label and sentry flag
// even though the HTTP body only ever carries the legacy code.
type RequestProblem struct {
	Status   int
	Location Location
	Field    string
	Metric   string
	Message  string
	Sentry   bool

	// WeaveCode is the legacy bare-integer body written to the client.
	// Defaults to WeaveUnknownError when empty.
	WeaveCode string

	cause error
}

func (p *RequestProblem) Error() string {
	if p.Field != "" {
		return fmt.Sprintf("%s: %s (%s.%s)", p.Location, p.Message, p.Location, p.Field)
	}
	return fmt.Sprintf("%s: %s", p.Location, p.Message)
}

// Cause lets errors.Cause(p) unwrap to the extractor-level error, if any,
// that produced this problem -- the pattern the teacher's logging helpers
// rely on throughout web/misc.go and web/hawkHandler.go.
func (p *RequestProblem) Cause() error {
	return p.cause
}

// Wrap attaches a lower-level cause (e.g. an HKDF or JSON error) to an
// existing RequestProblem for logging, without changing its HTTP shape.
func (p *RequestProblem) Wrap(cause error) *RequestProblem {
	p.cause = cause
	return p
}

// WeaveCodeOrDefault returns the legacy body to write for p, defaulting
// to the unknown-error code.
func (p *RequestProblem) WeaveCodeOrDefault() string {
	if p.WeaveCode != "" {
		return p.WeaveCode
	}
	return WeaveUnknownError
}

// AuthProblem builds a 401 for HAWK credential/signature failures (C2/C3).
func AuthProblem(metric, message string) *RequestProblem {
	return &RequestProblem{
		Status:   http.StatusUnauthorized,
		Location: LocationHeader,
		Metric:   "request.validate.hawk." + metric,
		Message:  message,
		Sentry:   false,
	}
}

// ValidationProblem builds a 400 for descriptor-extraction failures (C5-C10).
func ValidationProblem(location Location, field, metric, message string) *RequestProblem {
	return &RequestProblem{
		Status:   http.StatusBadRequest,
		Location: location,
		Field:    field,
		Metric:   metric,
		Message:  message,
		Sentry:   false,
	}
}

// PayloadTooLargeProblem and KnownBadBsoProblem get distinct metric labels
// per §7 even though both map to 400.
func PayloadTooLargeProblem(field string) *RequestProblem {
	return ValidationProblem(LocationBody, field, "request.validate.bso.payload_too_large", "payload too large")
}

func KnownBadBsoProblem() *RequestProblem {
	p := ValidationProblem(LocationBody, "payload", "request.validate.bso.known_bad", "known-bad crypto payload rejected")
	p.WeaveCode = WeaveInvalidWBO
	return p
}

// InternalProblem reports HKDF failures, missing app state, or malformed
// outgoing headers -- 500, always sentry-worthy.
func InternalProblem(cause error, message string) *RequestProblem {
	return (&RequestProblem{
		Status:  http.StatusInternalServerError,
		Metric:  "request.error.internal",
		Message: message,
		Sentry:  true,
	}).Wrap(cause)
}

// UidConflictProblem is C4's 400 for a HAWK payload uid that doesn't match
// the uid in the request path (spec.md §8 scenario 3).
func UidConflictProblem() *RequestProblem {
	p := ValidationProblem(LocationPath, "uid", "request.validate.hawk.uid_conflict", "uid does not match token")
	p.WeaveCode = WeaveUnknownError
	return p
}

// ReplayProblem is C3's 401 for a nonce the replay cache has already seen.
func ReplayProblem() *RequestProblem {
	return AuthProblem("replay", "nonce replay detected")
}

// ExpiredProblem is C2's 401 for a token payload past its expiry floor.
func ExpiredProblem() *RequestProblem {
	return AuthProblem("expired", "token payload has expired")
}
