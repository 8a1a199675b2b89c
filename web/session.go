package web

import (
	"context"
	"net/http"
	"time"

	"github.com/mozilla-services/syncstorage-admission/token"
)

// sessionKey is unexported so Session can only be reached through
// NewSessionContext/SessionFromContext -- the per-request extension bag
// described in §9: a typed, heterogeneous scratch space keyed by type
// identity rather than a map[string]interface{}.
type sessionKey struct{}

// Session is the extension bag shared by every extractor that runs
// against a single request. It is inserted once, by the first handler
// that calls sessionFromRequest (WeaveHandler, the outermost layer of
// NewDispatcher's chain), and read (never replaced) by everything
// downstream.
type Session struct {
	// Token is the authenticated HAWK payload, set once C2/C3 succeed.
	Token token.TokenPayload

	// Identity is the result of C4, cached so C5-C10 don't re-derive it.
	Identity *UserIdentifier

	// Descriptors holds C5-C7's path/query/precondition extraction,
	// filled in once by DescriptorHandler.
	Descriptors RequestDescriptors

	// BatchBodies holds C9's per-record fold, when the request was a
	// collection POST; nil for every other request shape.
	BatchBodies *BatchBodies

	// StartedAt is the request-admission clock reading C11 compares
	// against X-Last-Modified when stamping X-Weave-Timestamp.
	StartedAt time.Time

	// Problem is the last RequestProblem raised by any extractor in this
	// request, kept here so the logging middleware (C13) can report it
	// even though the HTTP response itself only carries the legacy body.
	Problem *RequestProblem

	// ErrorResult mirrors the teacher's field name for an arbitrary
	// terminal error a downstream handler wants surfaced to logging.
	ErrorResult error
}

func NewSessionContext(ctx context.Context, ses *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, ses)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// sessionFromRequest fetches or lazily creates the Session for r, mirroring
// the "replace the context if absent" idiom used by HawkHandler.
func sessionFromRequest(r *http.Request) (*Session, *http.Request) {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s, r
	}
	s := &Session{StartedAt: time.Now()}
	return s, r.WithContext(NewSessionContext(r.Context(), s))
}

// wallClock is indirected purely so dispatcher.go's nowUnix has a single
// named seam; production always calls through to time.Now.
func wallClock() time.Time {
	return time.Now()
}
