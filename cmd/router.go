package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/queue"
	"github.com/dealpulse/ingest/internal/scorer"
	"github.com/dealpulse/ingest/internal/store"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type pinger interface {
	Ping(ctx context.Context) error
}

type dealScorer interface {
	CalculateScore(ctx context.Context, dealID string) (model.ScoreResult, error)
	TopQualityDeals(ctx context.Context, limit int) ([]scorer.RankedDeal, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, t model.JobType, payload model.JobPayload, opts ...queue.Option) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type scheduleLister interface {
	List() []queue.Schedule
}

// api serves the ops endpoints.
type api struct {
	db        pinger
	scorer    dealScorer
	jobs      jobQueue
	schedules scheduleLister
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/deals", func(r chi.Router) {
		r.Get("/top", a.topDeals)
		r.Get("/{id}/score", a.dealScore)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/stats", a.jobStats)
		r.Post("/scrape-url", a.enqueueScrapeURL)
		r.Post("/scrape-merchant/{slug}", a.enqueueScrapeMerchant)
	})

	r.Get("/schedules", a.listSchedules)
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		zap.L().Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) topDeals(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTopLimit)
	}

	ranked, err := a.scorer.TopQualityDeals(r.Context(), limit)
	if err != nil {
		zap.L().Error("top deals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}
	if ranked == nil {
		ranked = []scorer.RankedDeal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": ranked})
}

func (a *api) dealScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := a.scorer.CalculateScore(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "deal not found")
		return
	}
	if err != nil {
		zap.L().Error("deal score failed", zap.String("deal_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) enqueueScrapeURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL    string `json:"url"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	a.enqueue(w, r, model.JobScrapeProductURL, model.JobPayload{URL: req.URL, UserID: req.UserID})
}

func (a *api) enqueueScrapeMerchant(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	a.enqueue(w, r, model.JobScrapeMerchant, model.JobPayload{Merchant: slug})
}

func (a *api) enqueue(w http.ResponseWriter, r *http.Request, t model.JobType, payload model.JobPayload) {
	id, err := a.jobs.Enqueue(r.Context(), t, payload)
	if err != nil {
		zap.L().Error("enqueue failed", zap.String("job_type", string(t)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not enqueue job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"job_id":   id,
		"job_type": string(t),
	})
}

func (a *api) jobStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.jobs.Stats(r.Context())
	if err != nil {
		zap.L().Error("job stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) listSchedules(w http.ResponseWriter, r *http.Request) {
	var out []queue.Schedule
	if a.schedules != nil {
		out = a.schedules.List()
	}
	if out == nil {
		out = []queue.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
