package web

import (
	"net/http"
	"strings"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/config"
	"github.com/mozilla-services/syncstorage-admission/hawkauth"
)

// AuthHandler is the HAWK front door (C2/C3/C4): every request that
// isn't a Dockerflow endpoint must carry a valid Hawk Authorization
// header before any descriptor downstream of it runs. It plays the same
// role as the teacher's HawkHandler, but delegates the MAC arithmetic to
// package hawkauth so this package never imports go.mozilla.org/hawk
// directly.
type AuthHandler struct {
	handler  http.Handler
	verifier *hawkauth.Verifier
}

// NewAuthHandler wires handler behind HAWK verification using verifier.
func NewAuthHandler(handler http.Handler, verifier *hawkauth.Verifier) *AuthHandler {
	return &AuthHandler{handler: handler, verifier: verifier}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if DockerFlowEndpoints[strings.ToLower(r.URL.Path)] {
		h.handler.ServeHTTP(w, r)
		return
	}

	session, r := sessionFromRequest(r)

	result, problem := h.verifier.Verify(r, nowUnix())
	if problem != nil {
		writeAuthProblem(w, r, problem)
		return
	}
	session.Token = result.Payload

	if strings.HasPrefix(r.URL.Path, "/1.5/") {
		identity, problem := ExtractIdentity(r.URL.Path, result.Payload)
		if problem != nil {
			writeAuthProblem(w, r, problem)
			return
		}
		session.Identity = identity
	}

	h.handler.ServeHTTP(w, r)
}

// writeAuthProblem adapts an *apierror.RequestProblem (the type hawkauth
// and ExtractIdentity return) to this package's WriteProblem, which
// operates on the type-aliased RequestProblem.
func writeAuthProblem(w http.ResponseWriter, r *http.Request, p *apierror.RequestProblem) {
	if p.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Hawk")
	}
	WriteProblem(w, r, p)
}

// nowUnix is the clock hawkauth.Verifier.Verify checks expiry against;
// split out so tests can observe that production wiring always passes
// wall-clock time, never a frozen value.
func nowUnix() int64 {
	return wallClock().Unix()
}

// RequestDescriptors is C5-C7's combined output for one storage-path
// request: every descriptor that could be extracted without touching the
// body, in the declared order (collection, then BSO, then query
// parameters, then precondition headers). A field is nil/zero when the
// request path or method doesn't carry that descriptor.
type RequestDescriptors struct {
	Collection   *CollectionParam
	Bso          *BsoParam
	Query        BsoQueryParams
	PreCondition PreConditionHeader
}

// ExtractRequestDescriptors runs C5 (collection/BSO path segments), C6
// (query parameters) and C7 (precondition headers) over r in the order
// §9 declares them, short-circuiting on the first problem. Extracting
// the body (C8/C9) and the batch gate (C10) is left to the caller, since
// those depend on the HTTP method and the collection name this function
// resolves.
func ExtractRequestDescriptors(r *http.Request) (RequestDescriptors, *RequestProblem) {
	var out RequestDescriptors

	collection, ok, problem := ExtractCollectionParam(r.URL.Path)
	if problem != nil {
		return RequestDescriptors{}, problem
	}
	if ok {
		out.Collection = &collection
	}

	if out.Collection != nil && len(splitStoragePath(r.URL.Path)) == 6 {
		bso, problem := ExtractBsoParam(r.URL.Path)
		if problem != nil {
			return RequestDescriptors{}, problem
		}
		out.Bso = &bso
	}

	query, problem := ExtractQueryParams(r.URL.Query())
	if problem != nil {
		return RequestDescriptors{}, problem
	}
	out.Query = query

	precondition, problem := ExtractPreConditionHeader(r.Header)
	if problem != nil {
		return RequestDescriptors{}, problem
	}
	out.PreCondition = precondition

	return out, nil
}

// DescriptorHandler runs ExtractRequestDescriptors ahead of handler,
// storing the result on the Session (C13's logging middleware and any
// downstream storage handler both read it from there) and short-circuiting
// with the appropriate admission-failure response on the first bad
// descriptor.
func DescriptorHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if DockerFlowEndpoints[strings.ToLower(r.URL.Path)] {
			handler.ServeHTTP(w, r)
			return
		}

		session, r := sessionFromRequest(r)

		descriptors, problem := ExtractRequestDescriptors(r)
		if problem != nil {
			WriteProblem(w, r, problem)
			return
		}
		session.Descriptors = descriptors

		handler.ServeHTTP(w, r)
	})
}

// ExtractBatchAdmission runs C9/C10 for a storage write: a collection
// POST extracts BatchBodies plus the record-count trim and
// known-bad-crypto whole-request check; any other method (including a
// single-BSO PUT) reads no body here. Every method may carry a BatchGate
// when `batch`/`commit` query parameters were supplied. validator backs C10's existing-batch-id check; it may
// be nil where no batch pool is wired (e.g. unit tests of the admission
// path alone).
func ExtractBatchAdmission(r *http.Request, collection string, limits config.ServerLimits, validator BatchIDValidator) (*BatchGate, *RequestProblem) {
	gate, problem := ExtractBatchGate(r, limits, validator)
	if problem != nil {
		return nil, problem
	}

	if r.Method != http.MethodPost {
		return gate, nil
	}

	bodies, problem := ExtractBatchBodies(r, limits)
	if problem != nil {
		return nil, problem
	}
	ApplyRecordCountLimit(&bodies, limits)
	if problem := CheckKnownBadCrypto(bodies, collection); problem != nil {
		return nil, problem
	}

	if s, ok := SessionFromContext(r.Context()); ok {
		s.BatchBodies = &bodies
	}

	return gate, nil
}

// NewDispatcher composes C2-C11 into the single ordered admission chain:
// WeaveHandler (outermost, so the timestamp it captures covers everything
// below) wraps AuthHandler (HAWK + identity), which wraps DescriptorHandler
// (path/query/precondition), which wraps the caller's storage routes.
// Dockerflow's three operational endpoints are exempted from HAWK and
// descriptor extraction at every layer, matching §4.11.
func NewDispatcher(routes http.Handler, verifier *hawkauth.Verifier) http.Handler {
	return WeaveHandler(NewAuthHandler(DescriptorHandler(routes), verifier))
}
