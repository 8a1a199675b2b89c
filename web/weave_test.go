package web

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeaveHandlerNoLastModified(t *testing.T) {
	h := WeaveHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	got, err := strconv.ParseFloat(rr.Header().Get("X-Weave-Timestamp"), 64)
	require.NoError(t, err)

	now := float64(time.Now().UnixNano()) / 1e9
	assert.InDelta(t, now, got, 2.0)
}

func TestWeaveHandlerOlderLastModified(t *testing.T) {
	older := FormatWeaveTimestamp(float64(time.Now().Add(-time.Second).UnixNano()) / 1e9)

	h := WeaveHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Last-Modified", older)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	weave, err := strconv.ParseFloat(rr.Header().Get("X-Weave-Timestamp"), 64)
	require.NoError(t, err)
	olderF, _ := strconv.ParseFloat(older, 64)
	assert.Greater(t, weave, olderF)
}

func TestWeaveHandlerNewerLastModified(t *testing.T) {
	newer := FormatWeaveTimestamp(float64(time.Now().Add(4*time.Second).UnixNano()) / 1e9)

	h := WeaveHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Last-Modified", newer)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, newer, rr.Header().Get("X-Weave-Timestamp"))
}

func TestWeaveHandlerSkipsDockerflow(t *testing.T) {
	h := WeaveHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/__heartbeat__", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("X-Weave-Timestamp"))
}
