package web

import (
	"fmt"
	"net/http"
	"os"
	"path"
)

// HealthChecker is the admission core's view of whatever backs the batch
// pool, so /__heartbeat__ can report a real liveness signal instead of
// always answering OK.
type HealthChecker interface {
	Ping() error
}

// okResponse writes a 200 response with a simple string body, the same
// content-type/nosniff pairing the teacher's OKResponse used.
func okResponse(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, s)
}

// HeartbeatHandler answers /__heartbeat__: OK unless checker reports the
// backing store is down, in which case it's a 503 so the load balancer
// pulls this instance out of rotation.
func HeartbeatHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(); err != nil {
				p := InternalProblem(err, "heartbeat check failed")
				p.Status = http.StatusServiceUnavailable
				WriteProblem(w, r, p)
				return
			}
		}
		okResponse(w, "OK")
	}
}

// LBHeartbeatHandler answers /__lbheartbeat__: a pure process-liveness
// check, never touching the backing store, per Dockerflow convention.
func LBHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	okResponse(w, "OK")
}

// VersionHandler answers /__version__ by serving version.json from the
// process's working directory, same as the teacher's handleVersion.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	dir, err := os.Getwd()
	if err != nil {
		WriteProblem(w, r, InternalProblem(err, "could not get working directory"))
		return
	}

	filename := path.Clean(dir + string(os.PathSeparator) + "version.json")
	f, err := os.Open(filename)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		WriteProblem(w, r, InternalProblem(err, "could not stat version.json"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, "__version__", stat.ModTime(), f)
}
