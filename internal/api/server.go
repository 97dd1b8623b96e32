// Package api exposes the operational HTTP surface: a health check and
// basic usage stats. The bot itself talks to Telegram by long polling,
// nothing here is user-facing.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"infopalbot/internal/queue"
	"infopalbot/internal/scheduler"
	"infopalbot/internal/storage"
)

type Server struct {
	httpServer *http.Server
	db         *gorm.DB
	cache      *storage.RedisCache
	sched      *scheduler.Scheduler
	queue      *queue.Queue
}

func New(port string, db *gorm.DB, cache *storage.RedisCache, sched *scheduler.Scheduler, q *queue.Queue) *Server {
	s := &Server{
		db:    db,
		cache: cache,
		sched: sched,
		queue: q,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
	})

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	logrus.WithField("addr", s.httpServer.Addr).Info("Admin API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
	Jobs     int    `json:"scheduled_jobs"`
	Queue    int    `json:"queued_notifications"`
}

// handleHealth reports component status; any dependency being down turns
// the overall status degraded with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "up",
		Redis:    "up",
		Jobs:     s.sched.Jobs(),
		Queue:    s.queue.Len(),
	}

	if s.db == nil {
		resp.Database = "down"
	} else if sqlDB, err := s.db.DB(); err != nil {
		resp.Database = "down"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		resp.Database = "down"
	}
	if s.cache == nil {
		resp.Redis = "disabled"
	} else if err := s.cache.Ping(ctx); err != nil {
		resp.Redis = "down"
	}

	code := http.StatusOK
	if resp.Database == "down" || resp.Redis == "down" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := storage.CollectStats(r.Context(), s.db)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to collect stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to collect stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithField("error", err).Error("Failed to encode response")
	}
}
