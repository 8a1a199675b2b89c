package web

import (
	"encoding/json"
	"mime"
	"net/http"
	"reflect"
	"strings"
)

// getMediaType extracts the mediatype portion from a Content-Type or
// Accept header value, discarding parameters; returns "" on a malformed
// header. This is enough for working with the Sync 1.5 client fleet.
func getMediaType(contentType string) (mediatype string) {
	mediatype, _, _ = mime.ParseMediaType(contentType)
	return
}

// acceptedBodyContentTypes are the three Content-Type values C8/C9 will
// parse a request body as (§4.8/§6).
var acceptedBodyContentTypes = map[string]bool{
	"application/json":      true,
	"text/plain":            true,
	"application/newlines":  true,
}

// ContentTypeOk reports whether r's Content-Type is one C8/C9 accept.
func ContentTypeOk(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true // treated as application/json by callers
	}
	return acceptedBodyContentTypes[getMediaType(ct)]
}

var acceptRewrites = []string{"*/*", "application/*", "*/json"}

// AcceptHeaderOk validates r's Accept header is application/json or
// application/newlines (normalizing common wildcard forms to JSON); on
// failure it writes a 406 RequestProblem and returns false.
func AcceptHeaderOk(w http.ResponseWriter, r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		r.Header.Set("Accept", "application/json")
		return true
	}

	mediatype := getMediaType(accept)
	if mediatype == "application/json" || mediatype == "application/newlines" {
		return true
	}

	for _, rewrite := range acceptRewrites {
		if strings.Contains(accept, rewrite) {
			r.Header.Set("Accept", "application/json")
			return true
		}
	}

	p := ValidationProblem(LocationHeader, "Accept",
		"request.validate.accept.unsupported", "unsupported Accept header: "+accept)
	p.Status = http.StatusNotAcceptable
	WriteProblem(w, r, p)
	return false
}

// JSON writes val as a single JSON document.
func JSON(w http.ResponseWriter, r *http.Request, val interface{}) {
	js, err := json.Marshal(val)
	if err != nil {
		WriteProblem(w, r, InternalProblem(err, "could not encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
	w.Write([]byte("\n"))
}

// NewLine writes val as newline-delimited JSON: one line per element if
// val is a slice or array, else a single line for the value as a whole.
func NewLine(w http.ResponseWriter, r *http.Request, val interface{}) {
	w.Header().Set("Content-Type", "application/newlines")

	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		raw, err := json.Marshal(val)
		if err != nil {
			WriteProblem(w, r, InternalProblem(err, "could not encode response"))
			return
		}
		w.Write(raw)
		w.Write([]byte("\n"))
		return
	}

	for i := 0; i < rv.Len(); i++ {
		if !rv.Index(i).CanInterface() {
			continue
		}
		item := rv.Index(i).Interface()

		var (
			raw []byte
			err error
		)
		if jm, ok := item.(json.Marshaler); ok {
			raw, err = jm.MarshalJSON()
		} else {
			raw, err = json.Marshal(item)
		}
		if err != nil {
			WriteProblem(w, r, InternalProblem(err, "could not encode a response item"))
			return
		}
		w.Write(raw)
		w.Write([]byte("\n"))
	}
}

// JsonNewline replies as newline-delimited JSON when the client's Accept
// header asked for it, else as a single JSON document (§6 content
// negotiation).
func JsonNewline(w http.ResponseWriter, r *http.Request, val interface{}) {
	if strings.Contains(r.Header.Get("Accept"), "application/newlines") {
		NewLine(w, r, val)
	} else {
		JSON(w, r, val)
	}
}

// JSONError writes a structured {"err": msg} JSON body. Only used when
// the caller has opted into descriptive errors (see WriteProblem).
func JSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	js, _ := json.Marshal(struct {
		Err string `json:"err"`
	}{msg})
	w.Write(js)
}
