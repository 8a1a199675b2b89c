package web

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DockerFlowEndpoints are the Mozilla Dockerflow operational paths that
// skip HAWK auth and the X-Weave-Timestamp stamp (§4.11).
var DockerFlowEndpoints = map[string]bool{
	"/__heartbeat__":   true,
	"/__lbheartbeat__": true,
	"/__version__":     true,
}

// FormatWeaveTimestamp renders a unix-seconds float the way every Sync
// 1.5 timestamp is rendered on the wire: exactly two decimal places.
func FormatWeaveTimestamp(seconds float64) string {
	return fmt.Sprintf("%.2f", seconds)
}

// weaveWriter buffers the status/header write so WeaveHandler can inject
// X-Weave-Timestamp after the wrapped handler has had a chance to set
// X-Last-Modified, but before anything reaches the network -- mirroring
// the teacher's weaveWriter/timestampWriter split.
type weaveWriter struct {
	http.ResponseWriter
	req         *http.Request
	requestTS   float64
	wroteHeader bool
}

func (w *weaveWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	if !DockerFlowEndpoints[strings.ToLower(w.req.URL.Path)] {
		w.Header().Set("X-Weave-Timestamp", FormatWeaveTimestamp(w.weaveTimestamp()))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *weaveWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// weaveTimestamp is C11's core comparison: the response wins only if its
// X-Last-Modified is both present, parseable, and greater than the time
// the request was admitted.
func (w *weaveWriter) weaveTimestamp() float64 {
	ts := w.requestTS
	if xlm := w.Header().Get("X-Last-Modified"); xlm != "" {
		if respTS, err := strconv.ParseFloat(xlm, 64); err == nil && respTS > ts {
			ts = respTS
		}
	}
	return ts
}

// WeaveHandler stamps X-Weave-Timestamp on every response not bound for
// a Dockerflow endpoint (C11). It must wrap every other handler in the
// chain so the timestamp it captures reflects when admission began, and
// its ResponseWriter wrapper must be innermost so X-Last-Modified set by
// downstream handlers is visible before headers are flushed.
func WeaveHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, r := sessionFromRequest(r)
		if session.StartedAt.IsZero() {
			session.StartedAt = time.Now()
		}

		ww := &weaveWriter{
			ResponseWriter: w,
			req:            r,
			requestTS:      float64(session.StartedAt.UnixNano()) / 1e9,
		}
		h.ServeHTTP(ww, r)

		// A handler that never wrote anything (e.g. a HEAD request) still
		// needs the header set.
		if !ww.wroteHeader {
			ww.WriteHeader(http.StatusOK)
		}
	})
}

// scanNewlineBody splits an application/newlines batch body (C9) into its
// non-blank lines.
func scanNewlineBody(body []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
