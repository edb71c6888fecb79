package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/connexus-ai/lexrag/internal/assembler"
	"github.com/connexus-ai/lexrag/internal/cache"
	"github.com/connexus-ai/lexrag/internal/gateway"
	"github.com/connexus-ai/lexrag/internal/model"
	"github.com/connexus-ai/lexrag/internal/retrieval"
)

// Gateway is the subset of the LLM Gateway (C1) the orchestrator depends
// on. Satisfied structurally by *gateway.Gateway.
type Gateway interface {
	GenerateEmbedding(ctx context.Context, text, model string, timeout time.Duration) ([]float32, error)
	GenerateText(ctx context.Context, prompt, model string, opts gateway.GenerateOptions) (string, error)
}

// Index is the subset of the Retrieval Index (C2) the orchestrator depends on.
type Index interface {
	SemanticSearch(ctx context.Context, queryEmbedding []float32, topK int, distanceThreshold float64, actIDFilter []string) ([]model.Chunk, error)
	FetchRelatedActs(ctx context.Context, seedActIDs []string, depth int, relationKinds []model.RelationKind) ([]model.Act, error)
}

// Store is the subset of the Query Store (C5) the orchestrator depends on.
type Store interface {
	Create(ctx context.Context, userID, questionText string) (string, error)
	GetByID(ctx context.Context, queryID, userID string) (*model.QueryRecord, error)
	UpdateFast(ctx context.Context, queryID string, content string, sources []model.Source, modelName string, generationMs int64) error
	UpdateAccurate(ctx context.Context, queryID string, content string, modelName string, generationMs int64) error
}

// Collector is the subset of the Metrics Collector (C6) the orchestrator
// depends on.
type Collector interface {
	RecordGenerationTime(ms float64, model string)
	RecordPipelineTime(ms float64, tier string)
	RecordStepTime(step string, ms float64)
	RecordSuccess()
	RecordFailure()
	RecordCacheHit()
	RecordCacheMiss()
}

// Config configures pipeline-level tuning knobs.
type Config struct {
	FastModel      string
	AccurateModel  string
	EmbeddingModel string

	FastTimeout      time.Duration
	AccurateTimeout  time.Duration
	EmbeddingTimeout time.Duration

	TopK              int
	DistanceThreshold float64
	RelatedActsDepth  int
	TokenBudget       int
	CacheTTL          time.Duration
}

// Orchestrator is the Pipeline Orchestrator (C7).
type Orchestrator struct {
	gateway Gateway
	index   Index
	cache   cache.Cache
	store   Store
	metrics Collector
	cfg     Config
	pool    *workerPool
}

// New builds an Orchestrator and starts its background worker pool with
// poolSize workers.
func New(gw Gateway, idx Index, ch cache.Cache, st Store, mc Collector, cfg Config, poolSize int) *Orchestrator {
	o := &Orchestrator{gateway: gw, index: idx, cache: ch, store: st, metrics: mc, cfg: cfg}
	o.pool = newWorkerPool(poolSize)
	return o
}

// Shutdown drains and stops the background worker pool.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.pool.shutdown(ctx)
}

// FastResult is the return value of ProcessFast.
type FastResult struct {
	QueryID      string
	Content      string
	Sources      []model.Source
	ModelName    string
	GenerationMs int64
	PipelineMs   int64
}

// ProcessFast runs the nine-step fast pipeline described in spec.md §4.5.
// Steps are strictly sequential; the first failure aborts the remainder.
func (o *Orchestrator) ProcessFast(ctx context.Context, userID, question string) (*FastResult, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if len(question) < model.MinQuestionLen || len(question) > model.MaxQuestionLen {
		o.metrics.RecordFailure()
		return nil, newPipelineError(KindValidation, "ProcessFast", errors.New("question length out of bounds"))
	}

	// Step 1: create the query record.
	queryID, err := o.store.Create(ctx, userID, question)
	if err != nil {
		o.metrics.RecordFailure()
		return nil, newPipelineError(KindUnavailable, "ProcessFast.Create", err)
	}

	chunks, related, err := o.retrieveContext(ctx, question, nil)
	if err != nil {
		o.metrics.RecordFailure()
		return nil, err
	}

	// Step 5: render context and build the user prompt.
	renderStart := time.Now()
	renderedContext := assembler.Render(chunks, related, o.cfg.TokenBudget)
	prompt := assembler.BuildUserPrompt(question, renderedContext)
	o.metrics.RecordStepTime("assemble", float64(time.Since(renderStart).Milliseconds()))

	// Step 6: generate the fast-tier answer.
	genStart := time.Now()
	text, err := o.gateway.GenerateText(ctx, prompt, o.cfg.FastModel, gateway.GenerateOptions{
		SystemPrompt: assembler.BuildSystemPrompt(false),
		Timeout:      o.cfg.FastTimeout,
	})
	genMs := time.Since(genStart).Milliseconds()
	o.metrics.RecordGenerationTime(float64(genMs), o.cfg.FastModel)
	if err != nil {
		o.metrics.RecordFailure()
		return nil, classifyGatewayError("ProcessFast.GenerateText", err, true)
	}

	// Step 7: extract sources.
	sources := assembler.ExtractSources(chunks)

	// Step 8: persist the fast tier.
	if err := o.store.UpdateFast(ctx, queryID, text, sources, o.cfg.FastModel, genMs); err != nil {
		o.metrics.RecordFailure()
		return nil, newPipelineError(KindUnavailable, "ProcessFast.UpdateFast", err)
	}

	// Step 9: cache the retrieval bundle for the accurate pipeline's reuse.
	bundle := model.RetrievalBundle{Chunks: chunks, RelatedActs: related, RenderedContext: renderedContext, CachedAt: time.Now()}
	if err := o.cache.Put(ctx, queryID, bundle, o.cfg.CacheTTL); err != nil {
		// Cache writes are never fatal to the fast pipeline.
		slog.Warn("[orchestrator] cache put failed, fast pipeline proceeds", "query_id", queryID, "error", err.Error())
	}

	pipelineMs := time.Since(start).Milliseconds()
	o.metrics.RecordPipelineTime(float64(pipelineMs), "fast")
	o.metrics.RecordSuccess()

	return &FastResult{
		QueryID:      queryID,
		Content:      text,
		Sources:      sources,
		ModelName:    o.cfg.FastModel,
		GenerationMs: genMs,
		PipelineMs:   pipelineMs,
	}, nil
}

// AccurateResult is the return value of ProcessAccurate.
type AccurateResult struct {
	QueryID      string
	Content      string
	ModelName    string
	GenerationMs int64
	PipelineMs   int64
}

// ProcessAccurate runs the accurate pipeline, reusing the cached retrieval
// bundle from the fast pipeline when available, recomputing it on a miss.
func (o *Orchestrator) ProcessAccurate(ctx context.Context, queryID, question string) (*AccurateResult, error) {
	start := time.Now()

	renderedContext, err := o.contextFor(ctx, queryID, question)
	if err != nil {
		o.metrics.RecordFailure()
		return nil, err
	}

	prompt := assembler.BuildUserPrompt(question, renderedContext)

	genStart := time.Now()
	text, err := o.gateway.GenerateText(ctx, prompt, o.cfg.AccurateModel, gateway.GenerateOptions{
		SystemPrompt: assembler.BuildSystemPrompt(true),
		Timeout:      o.cfg.AccurateTimeout,
	})
	genMs := time.Since(genStart).Milliseconds()
	o.metrics.RecordGenerationTime(float64(genMs), o.cfg.AccurateModel)
	if err != nil {
		o.metrics.RecordFailure()
		return nil, classifyGatewayError("ProcessAccurate.GenerateText", err, false)
	}

	if err := o.store.UpdateAccurate(ctx, queryID, text, o.cfg.AccurateModel, genMs); err != nil {
		o.metrics.RecordFailure()
		return nil, newPipelineError(KindUnavailable, "ProcessAccurate.UpdateAccurate", err)
	}

	pipelineMs := time.Since(start).Milliseconds()
	o.metrics.RecordPipelineTime(float64(pipelineMs), "accurate")
	o.metrics.RecordSuccess()

	return &AccurateResult{
		QueryID:      queryID,
		Content:      text,
		ModelName:    o.cfg.AccurateModel,
		GenerationMs: genMs,
		PipelineMs:   pipelineMs,
	}, nil
}

// contextFor returns the rendered context for queryID, preferring the
// cached bundle from ProcessFast and recomputing on a cache miss (expiry or
// external-store failure) without creating a new query record.
func (o *Orchestrator) contextFor(ctx context.Context, queryID, question string) (string, error) {
	bundle, hit, err := o.cache.Get(ctx, queryID)
	if err != nil {
		slog.Warn("[orchestrator] cache get failed, recomputing context", "query_id", queryID, "error", err.Error())
	}
	if hit {
		o.metrics.RecordCacheHit()
		return bundle.RenderedContext, nil
	}

	o.metrics.RecordCacheMiss()
	chunks, related, rerr := o.retrieveContext(ctx, question, nil)
	if rerr != nil {
		return "", rerr
	}
	return assembler.Render(chunks, related, o.cfg.TokenBudget), nil
}

// retrieveContext runs steps 2-4 of the fast pipeline: embed, semantic
// search, related-act traversal.
func (o *Orchestrator) retrieveContext(ctx context.Context, question string, actIDFilter []string) ([]model.Chunk, []model.Act, error) {
	embStart := time.Now()
	emb, err := o.gateway.GenerateEmbedding(ctx, question, o.cfg.EmbeddingModel, o.cfg.EmbeddingTimeout)
	o.metrics.RecordStepTime("embed", float64(time.Since(embStart).Milliseconds()))
	if err != nil {
		return nil, nil, newPipelineError(KindEmbedding, "retrieveContext.GenerateEmbedding", err)
	}

	searchStart := time.Now()
	chunks, err := o.index.SemanticSearch(ctx, emb, o.cfg.TopK, o.cfg.DistanceThreshold, actIDFilter)
	o.metrics.RecordStepTime("semantic_search", float64(time.Since(searchStart).Milliseconds()))
	if err != nil {
		if errors.Is(err, retrieval.ErrNoRelevantActs) {
			return nil, nil, newPipelineError(KindNoRelevantActs, "retrieveContext.SemanticSearch", err)
		}
		return nil, nil, newPipelineError(KindUnavailable, "retrieveContext.SemanticSearch", err)
	}

	actIDs := uniqueActIDs(chunks)
	relStart := time.Now()
	related, err := o.index.FetchRelatedActs(ctx, actIDs, o.cfg.RelatedActsDepth, nil)
	o.metrics.RecordStepTime("related_acts", float64(time.Since(relStart).Milliseconds()))
	if err != nil {
		return nil, nil, newPipelineError(KindUnavailable, "retrieveContext.FetchRelatedActs", err)
	}

	return chunks, related, nil
}

func uniqueActIDs(chunks []model.Chunk) []string {
	seen := make(map[string]bool, len(chunks))
	var ids []string
	for _, c := range chunks {
		if !seen[c.ActID] {
			seen[c.ActID] = true
			ids = append(ids, c.ActID)
		}
	}
	return ids
}

// classifyGatewayError maps a *gateway.Error into the orchestrator's own
// taxonomy. isFast distinguishes GenerationTimeout (fast) from plain
// Timeout (accurate), per spec.md's error-mapping table.
func classifyGatewayError(op string, err error, isFast bool) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case gateway.ErrTimeout:
			if isFast {
				return newPipelineError(KindGenerationTimeout, op, err)
			}
			return newPipelineError(KindTimeout, op, err)
		case gateway.ErrModelNotFound, gateway.ErrUnavailable:
			return newPipelineError(KindUnavailable, op, err)
		case gateway.ErrOutOfMemory:
			return newPipelineError(KindInternal, op, err)
		case gateway.ErrBadResponse:
			return newPipelineError(KindStructural, op, err)
		}
	}
	return newPipelineError(KindUnavailable, op, err)
}
