// Package engine routes a test requirement through the cost-minimizing
// decision pipeline: exact-match cache, then semantic similarity, then a
// quota-gated generative call. Every request produces exactly one audit
// entry regardless of outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/froth-ops/froth/pkg/audit"
	"github.com/froth-ops/froth/pkg/cache"
	"github.com/froth-ops/froth/pkg/metrics"
	"github.com/froth-ops/froth/pkg/models"
	"github.com/froth-ops/froth/pkg/pricing"
	"github.com/froth-ops/froth/pkg/provider"
	"github.com/froth-ops/froth/pkg/quota"
	"github.com/froth-ops/froth/pkg/vectorindex"
)

// Engine is the request router.
type Engine struct {
	cache      *cache.Store
	index      *vectorindex.Index
	ledger     *quota.Ledger
	auditor    *audit.Log
	generator  provider.Generator
	embedder   provider.Embedder
	estimator  *provider.Estimator
	pricing    pricing.Table
	model      string
	threshold  float64
	topK       int
	genTimeout time.Duration
	metrics    *metrics.Metrics

	strategies []strategy
}

// Options wires an Engine. Cache, index, ledger, and pricing are required;
// auditor, metrics, generator, and embedder may be nil, disabling the
// corresponding capability.
type Options struct {
	Cache      *cache.Store
	Index      *vectorindex.Index
	Ledger     *quota.Ledger
	Auditor    *audit.Log
	Generator  provider.Generator
	Embedder   provider.Embedder
	Estimator  *provider.Estimator
	Pricing    pricing.Table
	Model      string
	Threshold  float64
	TopK       int
	GenTimeout time.Duration
	Metrics    *metrics.Metrics
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.GenTimeout <= 0 {
		opts.GenTimeout = 60 * time.Second
	}
	e := &Engine{
		cache:      opts.Cache,
		index:      opts.Index,
		ledger:     opts.Ledger,
		auditor:    opts.Auditor,
		generator:  opts.Generator,
		embedder:   opts.Embedder,
		estimator:  opts.Estimator,
		pricing:    opts.Pricing,
		model:      opts.Model,
		threshold:  opts.Threshold,
		topK:       opts.TopK,
		genTimeout: opts.GenTimeout,
		metrics:    opts.Metrics,
	}
	e.strategies = []strategy{
		&cacheStrategy{e},
		&similarityStrategy{e},
	}
	return e
}

// request carries per-call state through the pipeline stages.
type request struct {
	id          string
	userID      string
	text        string
	fingerprint string
	embedding   []float32 // set by the similarity stage, reused for indexing
}

// strategy is one lookup stage of the pipeline. A nil result with a nil
// error means no match; an error means the stage degraded and the pipeline
// proceeds to the next stage.
type strategy interface {
	name() string
	lookup(ctx context.Context, req *request) (*models.Result, error)
}

// Handle routes one requirement for a user and returns the outcome. The
// returned error is non-nil for quota rejections and provider failures; the
// Result's Source field reflects the outcome in all cases.
func (e *Engine) Handle(ctx context.Context, userID, requirementText string) (models.Result, error) {
	start := time.Now()
	req := &request{
		id:          uuid.NewString(),
		userID:      userID,
		text:        requirementText,
		fingerprint: cache.Fingerprint(requirementText),
	}

	for _, s := range e.strategies {
		res, err := s.lookup(ctx, req)
		if err != nil {
			log.Warn().Err(err).
				Str("request_id", req.id).
				Str("stage", s.name()).
				Msg("lookup stage degraded, trying next")
			continue
		}
		if res != nil {
			return e.finish(req, *res, start, nil)
		}
	}

	return e.generate(ctx, req, start)
}

// generate is the only pipeline path that spends tokens. The quota ledger is
// consulted before the provider is called; on provider failure the
// reservation is rolled back since actual token usage is unknown.
func (e *Engine) generate(ctx context.Context, req *request, start time.Time) (models.Result, error) {
	estimated := int64(e.estimator.Estimate(req.text))

	reservation, err := e.ledger.CheckAndReserve(ctx, req.userID, estimated)
	if errors.Is(err, quota.ErrDailyLimit) || errors.Is(err, quota.ErrMonthlyLimit) {
		return e.finish(req, models.Result{Source: models.SourceQuotaRejected}, start,
			fmt.Errorf("user %s: %w", req.userID, err))
	}
	if err != nil {
		return e.finish(req, models.Result{Source: models.SourceError}, start,
			fmt.Errorf("quota check: %w", err))
	}

	if e.generator == nil {
		e.release(ctx, reservation)
		return e.finish(req, models.Result{Source: models.SourceError}, start,
			errors.New("no generative provider configured"))
	}

	genCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()

	comp, err := e.generator.Generate(genCtx, provider.BuildPrompt(req.text))
	if err != nil {
		e.release(ctx, reservation)
		return e.finish(req, models.Result{Source: models.SourceError}, start,
			fmt.Errorf("generate: %w", err))
	}

	charged := comp.TokensIn + comp.TokensOut
	if err := e.ledger.Charge(ctx, reservation, int64(charged)); err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("quota charge failed")
	}

	cost := e.pricing.Cost(e.model, comp.TokensIn, comp.TokensOut)
	artifact := []byte(comp.Text)
	e.writeThrough(ctx, req, artifact, comp.TokensIn, comp.TokensOut, cost)

	return e.finish(req, models.Result{
		Source:        models.SourceGeneration,
		Artifact:      artifact,
		TokensIn:      comp.TokensIn,
		TokensOut:     comp.TokensOut,
		TokensCharged: charged,
		CostUSD:       cost,
	}, start, nil)
}

func (e *Engine) release(ctx context.Context, res quota.Reservation) {
	if err := e.ledger.Release(ctx, res); err != nil {
		log.Error().Err(err).Str("user_id", res.UserID).Msg("quota release failed")
	}
}

// writeThrough stores a freshly produced artifact in the cache and, when an
// embedding is available, in the similarity index. Failures degrade to logs;
// the artifact is still returned to the caller.
func (e *Engine) writeThrough(ctx context.Context, req *request, artifact []byte, tokensIn, tokensOut int, cost float64) {
	err := e.cache.Put(models.CacheEntry{
		Fingerprint: req.fingerprint,
		Artifact:    artifact,
		Model:       e.model,
		TokensIn:    tokensIn,
		TokensOut:   tokensOut,
		CostUSD:     cost,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("cache write-through failed")
	}

	if req.embedding == nil && e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, req.text)
		if err != nil {
			log.Warn().Err(err).Str("request_id", req.id).Msg("embed for indexing failed")
		} else {
			req.embedding = vec
		}
	}
	if req.embedding == nil || e.index == nil {
		return
	}

	err = e.index.Insert(models.IndexRecord{
		Fingerprint: req.fingerprint,
		Requirement: req.text,
		Artifact:    artifact,
		Embedding:   req.embedding,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("index write-through failed")
	}
}

// finish stamps the result, emits the audit entry and metrics, and returns.
func (e *Engine) finish(req *request, result models.Result, start time.Time, err error) (models.Result, error) {
	result.RequestID = req.id
	result.LatencyMs = time.Since(start).Milliseconds()

	if e.auditor != nil {
		e.auditor.Append(models.AuditEntry{
			RequestID:       req.id,
			UserID:          req.userID,
			Source:          result.Source,
			TokensIn:        result.TokensIn,
			TokensOut:       result.TokensOut,
			TokensCharged:   result.TokensCharged,
			CostUSD:         result.CostUSD,
			SimilarityScore: result.SimilarityScore,
			LatencyMs:       result.LatencyMs,
		})
	}
	e.metrics.Observe(string(result.Source), result.TokensCharged, result.CostUSD, time.Since(start).Seconds())

	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("request_id", req.id).
		Str("user_id", req.userID).
		Str("source", string(result.Source)).
		Int("tokens_charged", result.TokensCharged).
		Int64("latency_ms", result.LatencyMs).
		Msg("request routed")

	return result, err
}

// Stats returns the user's quota snapshot.
func (e *Engine) Stats(ctx context.Context, userID string) (models.QuotaSnapshot, error) {
	return e.ledger.Stats(ctx, userID)
}

// RecentAudit returns the last n audit entries, newest last. Buffered writes
// are flushed first so the view is current.
func (e *Engine) RecentAudit(ctx context.Context, n int) ([]models.AuditEntry, error) {
	if e.auditor == nil {
		return nil, nil
	}
	e.auditor.Flush()
	return e.auditor.Recent(ctx, n)
}
