// Command server wires the Pipeline Orchestrator (C7) and its six
// dependencies (C1-C6) into an HTTP surface: request auth, rate limiting,
// health/metrics endpoints, and the query/rating endpoints the orchestrator
// and ratings store back.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/lexrag/internal/auth"
	"github.com/connexus-ai/lexrag/internal/cache"
	"github.com/connexus-ai/lexrag/internal/config"
	"github.com/connexus-ai/lexrag/internal/db"
	"github.com/connexus-ai/lexrag/internal/gateway"
	"github.com/connexus-ai/lexrag/internal/metrics"
	"github.com/connexus-ai/lexrag/internal/middleware"
	"github.com/connexus-ai/lexrag/internal/model"
	"github.com/connexus-ai/lexrag/internal/orchestrator"
	"github.com/connexus-ai/lexrag/internal/querystore"
	"github.com/connexus-ai/lexrag/internal/ratelimit"
	"github.com/connexus-ai/lexrag/internal/ratings"
	"github.com/connexus-ai/lexrag/internal/retrieval"
)

const Version = "0.1.0"

// app holds every constructed component, so handlers and shutdown both
// close over one value instead of package-level globals.
type app struct {
	cfg    *config.Config
	gw     *gateway.Gateway
	orch   *orchestrator.Orchestrator
	store  *querystore.Store
	rate   *ratings.Store
	limit  *ratelimit.Limiter
	verify *auth.Verifier
	mc     *metrics.Collector

	pgPool   closer
	neoDrv   neo4j.DriverWithContext
	redisCli *redis.Client
}

type closer interface {
	Close()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AccurateTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[server] starting", "version", Version, "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("[server] received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[server] orchestrator shutdown incomplete", "error", err.Error())
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("[server] stopped")
	return nil
}

// buildApp constructs every component in dependency order: storage and
// transport clients first, then the components that wrap them (C1-C6),
// then the orchestrator (C7) that ties them together.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pgPool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	neoDrv, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	redisCli := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	// Register on the default registry, which promhttp.Handler() serves at /metrics.
	mc := metrics.New(prometheus.DefaultRegisterer)

	gw := gateway.New(gateway.Config{
		BaseURL:          cfg.GatewayBaseURL,
		FastModel:        cfg.FastModel,
		AccurateModel:    cfg.AccurateModel,
		EmbeddingModel:   cfg.EmbeddingModel,
		FastTimeout:      cfg.FastTimeout,
		AccurateTimeout:  cfg.AccurateTimeout,
		EmbeddingTimeout: cfg.EmbeddingTimeout,
		DefaultTimeout:   cfg.FastTimeout,
		Capacity: map[gateway.ModelClass]int64{
			gateway.ClassFast:      cfg.FastConcurrency,
			gateway.ClassAccurate:  cfg.AccurateConcurrency,
			gateway.ClassEmbedding: cfg.EmbeddingConcurrency,
			gateway.ClassDefault:   cfg.DefaultConcurrency,
		},
		MaxRetries: 3,
	})

	idx := retrieval.New(pgPool, neoDrv, cfg.MinResults)
	ch := cache.New(cache.NewRedis(redisCli), cache.NewInProcess())
	store := querystore.New(pgPool)
	ratingsStore := ratings.New(pgPool)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimitPerMinute,
		Window:      time.Minute,
	})

	orch := orchestrator.New(gw, idx, ch, store, mc, orchestrator.Config{
		FastModel:         cfg.FastModel,
		AccurateModel:     cfg.AccurateModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		FastTimeout:       cfg.FastTimeout,
		AccurateTimeout:   cfg.AccurateTimeout,
		EmbeddingTimeout:  cfg.EmbeddingTimeout,
		TopK:              cfg.TopK,
		DistanceThreshold: cfg.DistanceThreshold,
		RelatedActsDepth:  cfg.RelatedActsDepth,
		TokenBudget:       cfg.ContextBudgetTokens,
		CacheTTL:          cfg.CacheTTL,
	}, int(cfg.AccurateConcurrency)+1)

	gw.WarmupAll(ctx, []string{cfg.FastModel, cfg.AccurateModel, cfg.EmbeddingModel})

	return &app{
		cfg:      cfg,
		gw:       gw,
		orch:     orch,
		store:    store,
		rate:     ratingsStore,
		limit:    limiter,
		verify:   verifier,
		mc:       mc,
		pgPool:   pgPool,
		neoDrv:   neoDrv,
		redisCli: redisCli,
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.limit.Stop()
	a.pgPool.Close()
	if err := a.neoDrv.Close(ctx); err != nil {
		slog.Warn("[server] neo4j driver close failed", "error", err.Error())
	}
	if err := a.redisCli.Close(); err != nil {
		slog.Warn("[server] redis client close failed", "error", err.Error())
	}
}

func (a *app) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(a.cfg.FrontendURL))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.InternalOrJWT(a.verify, a.cfg.InternalAuthSecret))
		r.Use(ratelimit.Middleware(a.limit))
		r.Use(middleware.Timeout(a.cfg.AccurateTimeout + 30*time.Second))

		r.Post("/api/v1/queries", a.handleCreateQuery)
		r.Post("/api/v1/queries/{queryID}/accurate", a.handleRequestAccurate)
		r.Get("/api/v1/queries/{queryID}", a.handleGetQuery)
		r.Put("/api/v1/queries/{queryID}/rating", a.handleUpsertRating)
	})

	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
		"gateway": a.gw.HealthCheck(r.Context(), false),
	})
}

type createQueryRequest struct {
	Question string `json:"question"`
}

func (a *app) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	res, err := a.orch.ProcessFast(r.Context(), userID, req.Question)
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"query": map[string]any{
			"id":           res.QueryID,
			"content":      res.Content,
			"sources":      res.Sources,
			"modelName":    res.ModelName,
			"generationMs": res.GenerationMs,
		},
	})
}

func (a *app) handleRequestAccurate(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")
	userID := auth.UserIDFromContext(r.Context())

	rec, err := a.store.GetByID(r.Context(), queryID, userID)
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("query not found"))
		return
	}

	if err := a.orch.DispatchAccurateBackground(r.Context(), queryID, userID, rec.QuestionText); err != nil {
		if errors.Is(err, orchestrator.ErrAccurateNotEligible) {
			writeJSON(w, http.StatusConflict, errorBody("query is not eligible for an accurate response"))
			return
		}
		a.writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (a *app) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")
	userID := auth.UserIDFromContext(r.Context())

	rec, err := a.store.GetByID(r.Context(), queryID, userID)
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("query not found"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "query": rec})
}

type upsertRatingRequest struct {
	Value int `json:"value"`
}

func (a *app) handleUpsertRating(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")
	userID := auth.UserIDFromContext(r.Context())

	var req upsertRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}

	if err := a.rate.Upsert(r.Context(), queryID, userID, model.RatingValue(req.Value)); err != nil {
		if errors.Is(err, ratings.ErrInvalidValue) {
			writeJSON(w, http.StatusBadRequest, errorBody("value must be 1 (up) or -1 (down)"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to save rating"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *app) writeOrchestratorError(w http.ResponseWriter, err error) {
	class := orchestrator.MapError(err)
	status := http.StatusInternalServerError
	switch class {
	case orchestrator.ClassBadRequest:
		status = http.StatusBadRequest
	case orchestrator.ClassNotFound:
		status = http.StatusNotFound
	case orchestrator.ClassGatewayTimeout:
		status = http.StatusGatewayTimeout
	case orchestrator.ClassServiceUnavailable:
		status = http.StatusServiceUnavailable
	case orchestrator.ClassInternalError:
		status = http.StatusInternalServerError
	}
	slog.Error("[server] request failed", "class", class, "error", err.Error())
	writeJSON(w, status, errorBody(strings.ToLower(string(class))))
}

func errorBody(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
