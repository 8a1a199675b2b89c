package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.mozilla.org/hawk"

	"github.com/mozilla-services/syncstorage-admission/config"
	"github.com/mozilla-services/syncstorage-admission/hawkauth"
	"github.com/mozilla-services/syncstorage-admission/storage"
	"github.com/mozilla-services/syncstorage-admission/web"
)

// admissionHandler is the illustrative storage route every request that
// clears the dispatcher chain lands on. A full Sync 1.5 storage engine
// would dispatch from here into per-collection read/write handlers; this
// service only proves that by the time ServeHTTP runs, the Session
// carries a verified identity and fully extracted descriptors, so it
// just echoes the verified uid back.
type admissionHandler struct {
	limits   config.ServerLimits
	batchIDs web.BatchIDValidator
}

func (h *admissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, r := sessionFromRequestForHandler(r)

	if session.Descriptors.Collection != nil {
		if gate, problem := web.ExtractBatchAdmission(r, session.Descriptors.Collection.Collection, h.limits, h.batchIDs); problem != nil {
			web.WriteProblem(w, r, problem)
			return
		} else if gate != nil {
			w.Header().Set("X-Last-Modified", web.FormatWeaveTimestamp(float64(time.Now().Unix())))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	var uid uint64
	if session.Identity != nil {
		uid = session.Identity.Uid
	}
	fmt.Fprintf(w, `{"uid":%d}`, uid)
}

// sessionFromRequestForHandler recovers the Session the dispatcher chain
// already attached to r's context; by the time a route handler runs one
// is always present, but the zero value is a safe fallback rather than a
// panic if this handler is ever exercised outside the full chain (e.g. a
// handler-level test).
func sessionFromRequestForHandler(r *http.Request) (*web.Session, *http.Request) {
	if s, ok := web.SessionFromContext(r.Context()); ok {
		return s, r
	}
	return &web.Session{}, r
}

func newRouter(limits config.ServerLimits, batchIDs web.BatchIDValidator) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/__heartbeat__", func(w http.ResponseWriter, req *http.Request) {
		web.HeartbeatHandler(batchIDs.(web.HealthChecker)).ServeHTTP(w, req)
	})
	r.HandleFunc("/__lbheartbeat__", web.LBHeartbeatHandler)
	r.HandleFunc("/__version__", web.VersionHandler)

	admission := &admissionHandler{limits: limits, batchIDs: batchIDs}
	storageRoutes := r.PathPrefix("/1.5/{uid:[0-9]+}/storage/").Subrouter()
	storageRoutes.Handle("/{collection}", admission).Methods("GET", "POST", "DELETE")
	storageRoutes.Handle("/{collection}/{bso}", admission).Methods("GET", "PUT", "DELETE")

	r.PathPrefix("/1.5/{uid:[0-9]+}/info/").Handler(admission)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Log.Mozlog {
		hostname, _ := os.Hostname()
		logger.Formatter = &web.MozlogFormatter{Hostname: hostname, Pid: os.Getpid()}
	}
	web.Logger = logger

	hawk.MaxTimestampSkew = time.Duration(cfg.HawkTimestampMaxSkewSeconds) * time.Second

	pool, err := storage.NewSqlitePool(cfg.Pool.DSN)
	if err != nil {
		logger.WithError(err).Fatal("could not open batch pool")
	}

	verifier := hawkauth.NewVerifier(cfg.Secrets)

	var router http.Handler = newRouter(cfg.Limit, pool)
	router = web.NewDispatcher(router, verifier)

	stoppable := &web.StoppableHandler{}
	router = wrapStoppable(stoppable, router)

	if !cfg.Log.DisableHTTP {
		logHandler := web.NewLogHandler(logger, router)
		if cfg.Log.OnlyHTTPErrors {
			logHandler.(*web.LoggingHandler).OnlyHTTPErrors = cfg.Log.OnlyHTTPErrors
		}
		router = logHandler
	}

	listenOn := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	server := &http.Server{
		Addr:    listenOn,
		Handler: router,
	}

	hd := &httpdown.HTTP{
		StopTimeout: 3 * time.Minute,
		KillTimeout: 2 * time.Minute,
	}

	logger.WithFields(log.Fields{
		"addr":                    listenOn,
		"pid":                     os.Getpid(),
		"limit_max_post_records":  cfg.Limit.MaxPostRecords,
		"limit_max_post_bytes":    cfg.Limit.MaxPostBytes,
		"limit_max_total_records": cfg.Limit.MaxTotalRecords,
		"limit_max_total_bytes":   cfg.Limit.MaxTotalBytes,
		"limit_max_batch_ttl":     cfg.Limit.MaxBatchTTL,
		"hawk_timestamp_max_skew": hawk.MaxTimestampSkew.Seconds(),
	}).Info("HTTP listening at " + listenOn)

	if err := httpdown.ListenAndServe(server, hd); err != nil {
		logger.WithError(err).Error("httpdown exited with error")
	}

	stoppable.StopHTTP()
	pool.Close()
}

// wrapStoppable puts s ahead of router so a signal handler (wired by a
// production deployment's init system) can flip IsStopped and have new
// requests rejected while httpdown drains the ones already in flight.
func wrapStoppable(s *web.StoppableHandler, router http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsStopped() {
			s.ServeHTTP(w, r)
			return
		}
		router.ServeHTTP(w, r)
	})
}
