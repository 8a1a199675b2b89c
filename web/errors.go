package web

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mozilla-services/syncstorage-admission/apierror"
)

// Logger is the structured logger every extractor and middleware in this
// package reports through. main (server.go) replaces it with the logger
// config.Config.NewLogger() built from the environment; tests may swap in
// a logger pointed at a buffer.
var Logger log.FieldLogger = log.StandardLogger()

// RequestProblem and Location are aliased from apierror so existing call
// sites in this package (pathparams.go, queryparams.go, precondition.go)
// keep working unchanged; hawkauth depends on apierror directly so it
// never has to import web.
type (
	RequestProblem = apierror.RequestProblem
	Location       = apierror.Location
)

const (
	LocationBody        = apierror.LocationBody
	LocationQueryString = apierror.LocationQueryString
	LocationURL         = apierror.LocationURL
	LocationHeader      = apierror.LocationHeader
	LocationPath        = apierror.LocationPath
	LocationCookies     = apierror.LocationCookies
	LocationMethod      = apierror.LocationMethod
	LocationUnknown     = apierror.LocationUnknown
)

const (
	WeaveUnknownError  = apierror.WeaveUnknownError
	WeaveIllegalMeth   = apierror.WeaveIllegalMeth
	WeaveMalformedJSON = apierror.WeaveMalformedJSON
	WeaveInvalidWBO    = apierror.WeaveInvalidWBO
	WeaveOverQuota     = apierror.WeaveOverQuota
)

func ValidationProblem(location Location, field, metric, message string) *RequestProblem {
	return apierror.ValidationProblem(location, field, metric, message)
}

func PayloadTooLargeProblem(field string) *RequestProblem {
	return apierror.PayloadTooLargeProblem(field)
}

func KnownBadBsoProblem() *RequestProblem {
	return apierror.KnownBadBsoProblem()
}

func InternalProblem(cause error, message string) *RequestProblem {
	return apierror.InternalProblem(cause, message)
}

// WriteProblem renders p onto w: the legacy bare-integer body by default,
// or a structured JSON RequestProblem when the caller opted in via both
// an Accept: application/json header and the X-Sync-Descriptive-Errors
// feature-detection header (see SPEC_FULL.md §9).
func WriteProblem(w http.ResponseWriter, r *http.Request, p *RequestProblem) {
	logProblem(r, p)

	if s, ok := SessionFromContext(r.Context()); ok {
		s.Problem = p
	}

	if wantsDescriptiveErrors(r) {
		JSONError(w, p.Error(), p.Status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if p.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Hawk")
	}
	w.WriteHeader(p.Status)
	fmt.Fprint(w, p.WeaveCodeOrDefault())
}

func wantsDescriptiveErrors(r *http.Request) bool {
	return getMediaType(r.Header.Get("Accept")) == "application/json" &&
		r.Header.Get("X-Sync-Descriptive-Errors") != ""
}

func logProblem(r *http.Request, p *RequestProblem) {
	fields := log.Fields{
		"method":    r.Method,
		"path":      r.URL.Path,
		"http_code": p.Status,
		"location":  string(p.Location),
		"metric":    p.Metric,
	}
	if cause := errors.Cause(p); cause != nil && cause != error(p) {
		fields["cause"] = cause.Error()
	}
	entry := Logger.WithFields(fields)
	if p.Sentry {
		entry.Error(p.Message)
	} else {
		entry.Warn(p.Message)
	}
}
