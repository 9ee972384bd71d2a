package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ivlev/cruisereel/internal/generator"
	"github.com/ivlev/cruisereel/internal/log"
)

// Server exposes the generation controllers over HTTP for polling clients.
type Server struct {
	registry *generator.Registry
	logger   zerolog.Logger
}

func NewServer(registry *generator.Registry) *Server {
	return &Server{registry: registry, logger: log.WithComponent("api")}
}

// Routes builds the router. startLimit caps generation starts per client IP per minute.
func (s *Server) Routes(startLimit int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.listJobs)
		r.Route("/cruises/{cruiseID}/video", func(r chi.Router) {
			r.With(rateLimit(startLimit, time.Minute)).Post("/", s.start)
			r.Get("/", s.status)
			r.Delete("/", s.cancel)
			r.Post("/reset", s.reset)
			r.Get("/download", s.download)
		})
	})
	return r
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 10
	}
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		}),
	)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	c := s.registry.Get(chi.URLParam(r, "cruiseID"))
	if _, err := c.Start(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("start failed")
		writeError(w, http.StatusInternalServerError, "start_failed", "Video generation could not be started.")
		return
	}
	writeJSON(w, http.StatusAccepted, c.Job())
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cruiseID")
	c, ok := s.registry.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusOK, generator.Job{CruiseID: id, Status: generator.StatusIdle})
		return
	}
	writeJSON(w, http.StatusOK, c.Job())
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.registry.Lookup(chi.URLParam(r, "cruiseID")); ok {
		c.Cancel()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cruiseID")
	c, ok := s.registry.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusOK, generator.Job{CruiseID: id, Status: generator.StatusIdle})
		return
	}
	c.Reset()
	writeJSON(w, http.StatusOK, c.Job())
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	c, ok := s.registry.Lookup(chi.URLParam(r, "cruiseID"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No video has been generated for this cruise.")
		return
	}
	out, ok := c.Output()
	if !ok {
		writeError(w, http.StatusConflict, "not_ready", "The video is not ready yet.")
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	http.ServeContent(w, r, out.Filename, c.Job().FinishedAt, bytes.NewReader(out.Data))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Jobs())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
