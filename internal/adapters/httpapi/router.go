// Package httpapi exposes a Synchronizer over HTTP:
//
//	GET  /object/{id}  stored record, 404 when missing
//	POST /object       save a flat record, respond with the stored record
//	GET  /prototypes   registered prototype names
//	GET  /healthz      liveness
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"graphsync/internal/core"
)

const maxBodyBytes = 4 << 20

// Middleware wraps the router.
type Middleware func(http.Handler) http.Handler

// Options tunes the router.
type Options struct {
	Logger hclog.Logger
	// Middlewares run after the built-in request id, recovery, logging and
	// CORS middlewares, in order.
	Middlewares []Middleware
	// CORSOrigins lists allowed origins; empty allows any origin.
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type handler struct {
	sync   *core.Synchronizer
	logger hclog.Logger
}

// NewRouter builds the HTTP surface for s.
func NewRouter(s *core.Synchronizer, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	h := &handler{sync: s, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(h.logger), cors(opts.CORSOrigins))
	for _, mw := range opts.Middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Get("/prototypes", h.listPrototypes)
	r.Get("/object/{id}", h.getObject)
	r.Post("/object", h.postObject)
	return r
}

func (h *handler) getObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entity, err := h.sync.Reference(id)
	if err == nil {
		err = entity.Reload(r.Context())
	}
	if err != nil {
		h.logger.Debug("get object failed", "id", id, "error", err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeStored(w, entity)
}

func (h *handler) postObject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	entity, err := h.sync.CreateFromJSON(body)
	if err == nil {
		err = entity.Save(r.Context())
	}
	if err != nil {
		h.logger.Debug("post object failed", "error", err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeStored(w, entity)
}

func (h *handler) listPrototypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"prototypes": h.sync.PrototypeNames(),
		"plugins":    h.sync.Plugins(),
	})
}

func (h *handler) writeStored(w http.ResponseWriter, entity *core.Entity) {
	payload, err := entity.SerializedStoredData()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func requestLogger(logger hclog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(started),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func cors(origins []string) Middleware {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				h := w.Header()
				if len(allowed) == 0 {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", "))
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
