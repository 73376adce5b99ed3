package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/opsdash/devops-inbox/backend/internal/azure"
	"github.com/opsdash/devops-inbox/backend/internal/config"
	"github.com/opsdash/devops-inbox/backend/internal/logger"
	"github.com/opsdash/devops-inbox/backend/internal/models"
	"github.com/opsdash/devops-inbox/backend/internal/pipeline"
	"github.com/opsdash/devops-inbox/backend/internal/processing"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	tracker := azure.New(cfg.BaseURL, cfg.Organization, cfg.Project, cfg.PersonalAccessToken, cfg.BatchSize, log)
	pipe := pipeline.New(tracker, cfg, log)

	srv := &server{log: log, pipeline: pipe, tracker: tracker}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Fetch-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", srv.handleHealth)
	r.Get("/workitems", srv.handleWorkItems)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type workItemFetcher interface {
	Fetch(ctx context.Context) ([]models.WorkItem, error)
}

type trackerPinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	pipeline workItemFetcher
	tracker  trackerPinger
}

type errorResponse struct {
	Error string `json:"error"`
}

// workItemView decorates a WorkItem with the days-open display metric so the
// table frontend does not recompute it per row.
type workItemView struct {
	models.WorkItem
	DaysOpen int `json:"daysOpen"`
}

type workItemsResponse struct {
	Count int            `json:"count"`
	Items []workItemView `json:"items"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleWorkItems(w http.ResponseWriter, r *http.Request) {
	fetchID := uuid.NewString()
	log := s.log.With(slog.String("fetch_id", fetchID))

	items, err := s.pipeline.Fetch(r.Context())
	if err != nil {
		log.Error("work item fetch failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	now := time.Now().UTC()
	views := make([]workItemView, len(items))
	for i, item := range items {
		views[i] = workItemView{
			WorkItem: item,
			DaysOpen: processing.DaysOpen(item.CreatedDate, now),
		}
	}

	// Display-only secondary sort over the rendered copy; the market-priority
	// ordering (and the slNo values assigned under it) stays intact.
	if order, ok := parseDaysOpenSort(r.URL.Query().Get("sort")); ok {
		sortByDaysOpen(views, order)
	}

	w.Header().Set("X-Fetch-Id", fetchID)
	writeJSON(w, http.StatusOK, workItemsResponse{Count: len(views), Items: views})
}

func parseDaysOpenSort(raw string) (descending bool, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}

	parts := strings.Split(raw, ":")
	if parts[0] != "days_open" {
		return false, false
	}

	order := "asc"
	if len(parts) > 1 && parts[1] != "" {
		order = parts[1]
	}

	switch order {
	case "asc":
		return false, true
	case "desc":
		return true, true
	default:
		return false, false
	}
}

func sortByDaysOpen(views []workItemView, descending bool) {
	sort.SliceStable(views, func(i, j int) bool {
		if descending {
			return views[i].DaysOpen > views[j].DaysOpen
		}
		return views[i].DaysOpen < views[j].DaysOpen
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
