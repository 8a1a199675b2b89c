package web

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mozilla-services/syncstorage-admission/token"
)

var accessLogUIDRegex = regexp.MustCompile(`/1\.5/([0-9]+)`)

func extractUID(path string) string {
	matches := accessLogUIDRegex.FindStringSubmatch(path)
	if len(matches) > 0 {
		return matches[1]
	}
	return ""
}

// LoggingHandler implements C13: it wraps every other handler in the
// chain and emits one structured access-log line per request, carrying
// whatever RequestProblem or HAWK identity the request accumulated along
// the way -- the same per-request fields the teacher's handler logged,
// reattached to this service's own Session/RequestProblem types.
type LoggingHandler struct {
	logger logrus.FieldLogger
	handler http.Handler

	// OnlyHTTPErrors suppresses the access-log line for 2xx/3xx
	// responses, matching config.LogConfig.OnlyHTTPErrors.
	OnlyHTTPErrors bool
}

// NewLogHandler wraps h, logging every request through l.
func NewLogHandler(l logrus.FieldLogger, h http.Handler) http.Handler {
	return &LoggingHandler{logger: l, handler: h}
}

func (h *LoggingHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	logger := makeLogger(w)
	start := time.Now()

	h.handler.ServeHTTP(logger, req)

	took := int(time.Since(start) / time.Millisecond)

	status := logger.Status()
	if h.OnlyHTTPErrors && status < http.StatusBadRequest {
		return
	}

	var (
		tokenPayload token.TokenPayload
		problem      *RequestProblem
	)
	if session, ok := SessionFromContext(req.Context()); ok {
		tokenPayload = session.Token
		problem = session.Problem
	}

	uri := req.RequestURI
	if req.ProtoMajor == 2 && req.Method == "CONNECT" {
		uri = req.Host
	}
	if uri == "" {
		uri = req.URL.RequestURI()
	}

	errno := status
	if errno == http.StatusOK {
		errno = 0
	}

	fields := logrus.Fields{
		"agent":     req.UserAgent(),
		"errno":     errno,
		"method":    req.Method,
		"path":      uri,
		"req_sz":    req.ContentLength,
		"res_sz":    logger.Size(),
		"t":         took,
		"uid":       extractUID(uri),
		"fxa_uid":   tokenPayload.FxaUid,
		"device_id": tokenPayload.HashedDeviceID,
	}
	if problem != nil {
		fields["error"] = problem.Error()
		fields["metric"] = problem.Metric
		fields["sentry"] = problem.Sentry
	}

	h.logger.WithFields(fields).Info("")
}

// mozlog is the MozLog standard envelope:
// https://github.com/mozilla-services/Dockerflow/blob/master/docs/mozlog.md
type mozlog struct {
	Timestamp  int64
	Type       string
	Logger     string
	Hostname   string
	EnvVersion string
	Pid        int
	Severity   uint8
	Fields     logrus.Fields
}

// MozlogFormatter renders a logrus.Entry as one mozlog JSON line.
type MozlogFormatter struct {
	Hostname string
	Pid      int
}

var encoderPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func (f *MozlogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	m := &mozlog{
		Timestamp:  entry.Time.UnixNano(),
		Type:       "mozsvc.metrics",
		Logger:     "Sync-1_5",
		Hostname:   f.Hostname,
		EnvVersion: "2.0",
		Pid:        f.Pid,
		Severity:   0,
		Fields:     entry.Data,
	}

	if _, ok := entry.Data["method"]; ok {
		if _, ok := entry.Data["path"]; ok {
			m.Type = "request.summary"
		}
	}

	if entry.Message != "" {
		entry.Data["msg"] = entry.Message
	}

	switch entry.Level {
	case logrus.PanicLevel:
		m.Severity = 1
	case logrus.FatalLevel:
		m.Severity = 2
	case logrus.ErrorLevel:
		m.Severity = 3
	case logrus.WarnLevel:
		m.Severity = 4
	case logrus.InfoLevel:
		m.Severity = 6
	case logrus.DebugLevel:
		m.Severity = 7
	}

	b := encoderPool.Get().(*bytes.Buffer)
	defer func() {
		b.Reset()
		encoderPool.Put(b)
	}()

	enc := json.NewEncoder(b)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	b.WriteString("\n")

	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out, nil
}

// The response-writer wrapper below is ported from
// github.com/gorilla/handlers, the same lineage the teacher's access
// logger borrowed it from, so that Status()/Size() are available without
// a second dependency just for byte/status counting.

func makeLogger(w http.ResponseWriter) loggingResponseWriter {
	var logger loggingResponseWriter = &responseLogger{w: w}
	if _, ok := w.(http.Hijacker); ok {
		logger = &hijackLogger{responseLogger{w: w}}
	}
	h, ok1 := logger.(http.Hijacker)
	c, ok2 := w.(http.CloseNotifier)
	if ok1 && ok2 {
		return hijackCloseNotifier{logger, h, c}
	}
	if ok2 {
		return &closeNotifyWriter{logger, c}
	}
	return logger
}

type loggingResponseWriter interface {
	http.ResponseWriter
	http.Flusher
	Status() int
	Size() int
}

type responseLogger struct {
	w      http.ResponseWriter
	status int
	size   int
}

func (l *responseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *responseLogger) Write(b []byte) (int, error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	size, err := l.w.Write(b)
	l.size += size
	return size, err
}

func (l *responseLogger) WriteHeader(s int) {
	l.w.WriteHeader(s)
	l.status = s
}

func (l *responseLogger) Status() int { return l.status }
func (l *responseLogger) Size() int   { return l.size }

func (l *responseLogger) Flush() {
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}

type hijackLogger struct {
	responseLogger
}

func (l *hijackLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.responseLogger.w.(http.Hijacker)
	conn, rw, err := h.Hijack()
	if err == nil && l.responseLogger.status == 0 {
		l.responseLogger.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

type closeNotifyWriter struct {
	loggingResponseWriter
	http.CloseNotifier
}

type hijackCloseNotifier struct {
	loggingResponseWriter
	http.Hijacker
	http.CloseNotifier
}
