// Package gateway implements the LLM Gateway (C1): the sole point of contact
// with the local Ollama-compatible inference server. It owns admission
// control (one semaphore per configured model class), retry policy, model
// catalog caching, and response parsing, so every other component talks to
// models through a single narrow interface.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ModelClass distinguishes the three configured model roles for timeout and
// concurrency-capacity selection. Any other model name falls back to the
// default class.
type ModelClass string

const (
	ClassFast      ModelClass = "fast"
	ClassAccurate  ModelClass = "accurate"
	ClassEmbedding ModelClass = "embedding"
	ClassDefault   ModelClass = "default"
)

// Config configures a Gateway instance.
type Config struct {
	BaseURL string

	FastModel      string
	AccurateModel  string
	EmbeddingModel string

	FastTimeout      time.Duration
	AccurateTimeout  time.Duration
	EmbeddingTimeout time.Duration
	DefaultTimeout   time.Duration

	// Capacity is the per-model-class concurrency cap, consulted at
	// construction time only; semaphores are never created lazily.
	Capacity map[ModelClass]int64

	MaxRetries int
}

// Gateway is the LLM Gateway. Safe for concurrent use.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	cfg        Config

	sems map[ModelClass]*semaphore.Weighted

	healthMu       sync.Mutex
	healthCachedAt time.Time
	healthCached   bool

	modelsMu       sync.Mutex
	modelsCachedAt time.Time
	models         map[string]bool
}

// New builds a Gateway with one semaphore per model class, created up front
// from cfg.Capacity so no request path ever allocates admission-control
// state lazily.
func New(cfg Config) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}

	sems := make(map[ModelClass]*semaphore.Weighted, 4)
	for _, class := range []ModelClass{ClassFast, ClassAccurate, ClassEmbedding, ClassDefault} {
		n := cfg.Capacity[class]
		if n <= 0 {
			n = 1
		}
		sems[class] = semaphore.NewWeighted(n)
	}

	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		cfg:        cfg,
		sems:       sems,
		models:     make(map[string]bool),
	}
}

func (g *Gateway) classOf(model string) ModelClass {
	switch model {
	case g.cfg.FastModel:
		return ClassFast
	case g.cfg.AccurateModel:
		return ClassAccurate
	case g.cfg.EmbeddingModel:
		return ClassEmbedding
	default:
		return ClassDefault
	}
}

func (g *Gateway) timeoutFor(model string) time.Duration {
	switch g.classOf(model) {
	case ClassFast:
		return g.cfg.FastTimeout
	case ClassAccurate:
		return g.cfg.AccurateTimeout
	case ClassEmbedding:
		return g.cfg.EmbeddingTimeout
	default:
		return g.cfg.DefaultTimeout
	}
}

// acquire blocks until a slot in the model's class semaphore is available or
// ctx is cancelled.
func (g *Gateway) acquire(ctx context.Context, model string) (func(), error) {
	sem := g.sems[g.classOf(model)]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

// HealthCheck probes the inference server's liveness endpoint. The last
// result is cached for 30s; force bypasses the cache. On network error the
// check fails closed (returns false).
func (g *Gateway) HealthCheck(ctx context.Context, force bool) bool {
	g.healthMu.Lock()
	if !force && time.Since(g.healthCachedAt) < 30*time.Second {
		cached := g.healthCached
		g.healthMu.Unlock()
		return cached
	}
	g.healthMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := withConnectionRetry(ctx, "HealthCheck", g.cfg.MaxRetries, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/version", nil)
		if err != nil {
			return false, newError(ErrUnavailable, "HealthCheck", "", err)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return false, newError(ErrUnavailable, "HealthCheck", "", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK, nil
	})

	g.healthMu.Lock()
	g.healthCachedAt = time.Now()
	g.healthCached = err == nil && ok
	result := g.healthCached
	g.healthMu.Unlock()

	if err != nil {
		slog.Warn("[gateway] health check failed", "error", err.Error())
	}
	return result
}

// ListModels returns the inference server's model catalog, refreshing the
// five-minute cache when refresh is true or the cache is empty/stale.
func (g *Gateway) ListModels(ctx context.Context, refresh bool) ([]string, error) {
	g.modelsMu.Lock()
	stale := refresh || time.Since(g.modelsCachedAt) >= 5*time.Minute || len(g.models) == 0
	if !stale {
		names := make([]string, 0, len(g.models))
		for name := range g.models {
			names = append(names, name)
		}
		g.modelsMu.Unlock()
		return names, nil
	}
	g.modelsMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tags, err := withConnectionRetry(ctx, "ListModels", g.cfg.MaxRetries, func() (tagsResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
		if err != nil {
			return tagsResponse{}, newError(ErrUnavailable, "ListModels", "", err)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return tagsResponse{}, newError(ErrUnavailable, "ListModels", "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return tagsResponse{}, newError(ErrUnavailable, "ListModels", "", fmt.Errorf("status %d", resp.StatusCode))
		}
		var out tagsResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return tagsResponse{}, newError(ErrBadResponse, "ListModels", "", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	g.modelsMu.Lock()
	g.models = make(map[string]bool, len(tags.Models))
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		g.models[m.Name] = true
		names = append(names, m.Name)
	}
	g.modelsCachedAt = time.Now()
	g.modelsMu.Unlock()

	slog.Info("[gateway] model catalog refreshed", "count", len(names))
	return names, nil
}

// ValidateModel reports whether modelName is in the (possibly cached) model
// catalog, refreshing it once if the model is not yet known.
func (g *Gateway) ValidateModel(ctx context.Context, modelName string) (bool, error) {
	g.modelsMu.Lock()
	known, seen := g.models[modelName]
	g.modelsMu.Unlock()
	if seen && known {
		return true, nil
	}

	if _, err := g.ListModels(ctx, true); err != nil {
		return false, err
	}

	g.modelsMu.Lock()
	defer g.modelsMu.Unlock()
	return g.models[modelName], nil
}

// GenerateOptions carries the tunable generation parameters. Zero values are
// replaced by spec defaults in GenerateText/GenerateStructured.
type GenerateOptions struct {
	SystemPrompt string
	Temperature  float64
	TopP         float64
	TopK         int
	NumCtx       int
	Seed         *int
	Timeout      time.Duration
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.Temperature == 0 {
		o.Temperature = 0.3
	}
	if o.TopP == 0 {
		o.TopP = 0.9
	}
	if o.TopK == 0 {
		o.TopK = 40
	}
	return o
}

// GenerateText generates plain text from model. When opts.Timeout is zero,
// the timeout is selected by the model's class.
func (g *Gateway) GenerateText(ctx context.Context, prompt, model string, opts GenerateOptions) (string, error) {
	opts = opts.withDefaults()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.timeoutFor(model)
	}

	release, err := g.acquire(ctx, model)
	if err != nil {
		return "", newError(ErrUnavailable, "GenerateText", model, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := withGenerationRetry(ctx, "GenerateText", func() (string, error) {
		return g.doGenerate(ctx, model, prompt, opts, "")
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", newError(ErrTimeout, "GenerateText", model, ctx.Err())
		}
		return "", err
	}
	return result, nil
}

// GenerateStructured generates text constrained to a JSON schema and parses
// the result. It augments the system prompt with a schema instruction block
// and sets the server's JSON-mode flag.
func (g *Gateway) GenerateStructured(ctx context.Context, prompt, model string, jsonSchema map[string]any, opts GenerateOptions) (map[string]any, error) {
	opts = opts.withDefaults()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.timeoutFor(model)
	}

	schemaJSON, err := json.MarshalIndent(jsonSchema, "", "  ")
	if err != nil {
		return nil, newError(ErrBadResponse, "GenerateStructured", model, fmt.Errorf("marshal schema: %w", err))
	}

	instruction := fmt.Sprintf(
		"Respond with a single JSON object matching this schema exactly:\n%s\nReply only with JSON, no prose, no markdown fences.",
		string(schemaJSON),
	)
	if opts.SystemPrompt != "" {
		opts.SystemPrompt = opts.SystemPrompt + "\n\n" + instruction
	} else {
		opts.SystemPrompt = instruction
	}

	release, err := g.acquire(ctx, model)
	if err != nil {
		return nil, newError(ErrUnavailable, "GenerateStructured", model, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := withGenerationRetry(ctx, "GenerateStructured", func() (string, error) {
		return g.doGenerate(ctx, model, prompt, opts, "json")
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ErrTimeout, "GenerateStructured", model, ctx.Err())
		}
		return nil, err
	}

	parsed, perr := parseJSONObject(raw)
	if perr != nil {
		return nil, newError(ErrBadResponse, "GenerateStructured", model, fmt.Errorf("unparseable structured output: %w", perr))
	}
	return parsed, nil
}

// parseJSONObject tries a strict JSON parse first; on failure it extracts the
// first top-level {...} substring and reparses. Mirrors the two-stage
// fallback models commonly wrap their structured output in prose or fences.
func parseJSONObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	candidate := raw[start : end+1]
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("reparse failed: %w", err)
	}
	return out, nil
}

// GenerateEmbedding embeds text using model (defaulting to the configured
// embedding model). Empty input after trimming is rejected.
func (g *Gateway) GenerateEmbedding(ctx context.Context, text, model string, timeout time.Duration) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(ErrBadResponse, "GenerateEmbedding", model, fmt.Errorf("empty input"))
	}
	if model == "" {
		model = g.cfg.EmbeddingModel
	}
	if timeout <= 0 {
		timeout = g.timeoutFor(model)
	}

	release, err := g.acquire(ctx, model)
	if err != nil {
		return nil, newError(ErrUnavailable, "GenerateEmbedding", model, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return withConnectionRetry(ctx, "GenerateEmbedding", g.cfg.MaxRetries, func() ([]float32, error) {
		body, err := json.Marshal(embeddingsRequest{Model: model, Prompt: text})
		if err != nil {
			return nil, newError(ErrBadResponse, "GenerateEmbedding", model, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, newError(ErrUnavailable, "GenerateEmbedding", model, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, newError(ErrUnavailable, "GenerateEmbedding", model, err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, classifyHTTPError("GenerateEmbedding", model, resp.StatusCode, respBody)
		}

		var out embeddingsResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, newError(ErrBadResponse, "GenerateEmbedding", model, err)
		}
		return out.Embedding, nil
	})
}

// Warmup issues a cheap, low-temperature generation against model to prime
// it into the inference server's memory. Failure is logged, never returned
// as an error to the caller, per its best-effort contract.
func (g *Gateway) Warmup(ctx context.Context, model string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := g.GenerateText(ctx, "Say OK.", model, GenerateOptions{Temperature: 0.0, Timeout: timeout})
	if err != nil {
		slog.Warn("[gateway] warmup failed", "model", model, "error", err.Error())
		return false
	}
	slog.Info("[gateway] warmup succeeded", "model", model)
	return true
}

// WarmupAll warms up models concurrently (defaulting to fast/accurate/embedding).
func (g *Gateway) WarmupAll(ctx context.Context, models []string) {
	if len(models) == 0 {
		models = []string{g.cfg.FastModel, g.cfg.AccurateModel, g.cfg.EmbeddingModel}
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, m := range models {
		model := m
		grp.Go(func() error {
			g.Warmup(gctx, model, 30*time.Second)
			return nil
		})
	}
	_ = grp.Wait()
}

// doGenerate issues a single /api/generate call and returns the response text.
func (g *Gateway) doGenerate(ctx context.Context, model, prompt string, opts GenerateOptions, format string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		System: opts.SystemPrompt,
		Format: format,
		Options: generateOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
			NumCtx:      opts.NumCtx,
			Seed:        opts.Seed,
		},
	})
	if err != nil {
		return "", newError(ErrBadResponse, "generate", model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", newError(ErrUnavailable, "generate", model, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", newError(ErrUnavailable, "generate", model, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError("generate", model, resp.StatusCode, respBody)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", newError(ErrBadResponse, "generate", model, err)
	}
	return out.Response, nil
}

// classifyHTTPError inspects a non-2xx response body (lowercased) to tell
// a missing-model 404 apart from an out-of-memory 5xx, falling back to a
// generic unavailable classification.
func classifyHTTPError(op, model string, status int, body []byte) error {
	lower := strings.ToLower(string(body))

	if status == http.StatusNotFound && strings.Contains(lower, "model") && strings.Contains(lower, "not found") {
		return newError(ErrModelNotFound, op, model, fmt.Errorf("model not found: %s", strings.TrimSpace(string(body))))
	}
	if status >= 500 && (strings.Contains(lower, "memory") || strings.Contains(lower, "oom")) {
		return newError(ErrOutOfMemory, op, model, fmt.Errorf("out of memory: %s", strings.TrimSpace(string(body))))
	}
	return newError(ErrUnavailable, op, model, fmt.Errorf("status %d: %s", status, strconv.Quote(string(body))))
}
