package web

import (
	"net/http"
	"sync"
)

// StoppableHandler answers every request with a 503 + Retry-After once
// StopHTTP has been called; wrapStoppable in server.go routes requests to
// it while IsStopped reports true.
type StoppableHandler struct {
	sync.Mutex
	stopped    bool
	RetryAfter string
}

func (s *StoppableHandler) StopHTTP() {
	s.Lock()
	s.stopped = true
	s.Unlock()
}

func (s *StoppableHandler) IsStopped() bool {
	s.Lock()
	defer s.Unlock()
	return s.stopped
}

func (s *StoppableHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	retryAfter := s.RetryAfter
	if retryAfter == "" {
		retryAfter = "60"
	}

	w.Header().Set("Retry-After", retryAfter)
	WriteProblem(w, req, &RequestProblem{
		Status:  http.StatusServiceUnavailable,
		Metric:  "request.error.stopping",
		Message: "server is shutting down",
	})
}
