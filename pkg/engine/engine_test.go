package engine

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/froth-ops/froth/pkg/audit"
	"github.com/froth-ops/froth/pkg/cache"
	"github.com/froth-ops/froth/pkg/models"
	"github.com/froth-ops/froth/pkg/pricing"
	"github.com/froth-ops/froth/pkg/provider"
	"github.com/froth-ops/froth/pkg/quota"
	"github.com/froth-ops/froth/pkg/vectorindex"
)

type fakeGenerator struct {
	calls int
	comp  provider.Completion
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) (provider.Completion, error) {
	g.calls++
	if g.err != nil {
		return provider.Completion{}, g.err
	}
	return g.comp, nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("no embedding for text")
	}
	return vec, nil
}

func newTestEngine(t *testing.T, gen provider.Generator, emb provider.Embedder) *Engine {
	t.Helper()
	dir := t.TempDir()

	store, err := cache.New(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	idx, err := vectorindex.New(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	ledger, err := quota.New(filepath.Join(dir, "quota.db"), func(userID string) (int64, int64) {
		if userID == "capped" {
			return 100, 300000
		}
		return 10000, 300000
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	auditor, err := audit.New(filepath.Join(dir, "audit.db"), audit.Config{RetentionDays: 90, Buffer: 64})
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	t.Cleanup(func() {
		auditor.Close()
		ledger.Close()
		idx.Close()
		store.Close()
	})

	return New(Options{
		Cache:      store,
		Index:      idx,
		Ledger:     ledger,
		Auditor:    auditor,
		Generator:  gen,
		Embedder:   emb,
		Estimator:  provider.NewEstimator(),
		Pricing:    pricing.Default(),
		Model:      "gpt-3.5-turbo",
		Threshold:  0.75,
		TopK:       5,
		GenTimeout: 5 * time.Second,
	})
}

const (
	reqExpiry     = "The system must reject expired session tokens"
	reqParaphrase = "Expired session tokens must be rejected by the system"
)

var artifactJSON = `{"requirement":"The system must reject expired session tokens","test_cases":[{"id":"TC-1","title":"expired token is rejected"}]}`

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{comp: provider.Completion{Text: artifactJSON, TokensIn: 400, TokensOut: 310}}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		reqExpiry:     {1, 0},
		reqParaphrase: {0.81, 0.5864}, // unit-ish vector, cosine vs reqExpiry ~0.81
	}}
	eng := newTestEngine(t, gen, emb)

	// First request misses everything and generates.
	res, err := eng.Handle(ctx, "maya", reqExpiry)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Source != models.SourceGeneration {
		t.Fatalf("source = %s, want %s", res.Source, models.SourceGeneration)
	}
	if res.TokensCharged != 710 {
		t.Errorf("tokens charged = %d, want 710", res.TokensCharged)
	}
	wantCost := 400.0/1000*0.001 + 310.0/1000*0.002
	if math.Abs(res.CostUSD-wantCost) > 1e-9 {
		t.Errorf("cost = %f, want %f", res.CostUSD, wantCost)
	}
	snap, err := eng.Stats(ctx, "maya")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if snap.DailyUsed != 710 {
		t.Errorf("daily used = %d, want 710", snap.DailyUsed)
	}

	// Identical resubmission is a free cache hit.
	res2, err := eng.Handle(ctx, "maya", reqExpiry)
	if err != nil {
		t.Fatalf("cache hit: %v", err)
	}
	if res2.Source != models.SourceCache {
		t.Fatalf("source = %s, want %s", res2.Source, models.SourceCache)
	}
	if res2.TokensCharged != 0 {
		t.Errorf("cache hit charged %d tokens", res2.TokensCharged)
	}
	if string(res2.Artifact) != artifactJSON {
		t.Errorf("cache artifact mismatch")
	}

	// A paraphrase resolves through the similarity index, adapted and free.
	res3, err := eng.Handle(ctx, "maya", reqParaphrase)
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if res3.Source != models.SourceSimilarity {
		t.Fatalf("source = %s, want %s", res3.Source, models.SourceSimilarity)
	}
	if res3.SimilarityScore < 0.80 || res3.SimilarityScore > 0.82 {
		t.Errorf("similarity score = %f, want ~0.81", res3.SimilarityScore)
	}
	if res3.TokensCharged != 0 {
		t.Errorf("similarity hit charged %d tokens", res3.TokensCharged)
	}
	if !strings.Contains(string(res3.Artifact), reqParaphrase) {
		t.Errorf("artifact not adapted to new requirement: %s", res3.Artifact)
	}

	// The similarity hit was written through, so resubmitting the
	// paraphrase is now an exact cache hit.
	res4, err := eng.Handle(ctx, "maya", reqParaphrase)
	if err != nil {
		t.Fatalf("write-through cache hit: %v", err)
	}
	if res4.Source != models.SourceCache {
		t.Fatalf("source = %s, want %s", res4.Source, models.SourceCache)
	}

	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	snap, err = eng.Stats(ctx, "maya")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if snap.DailyUsed != 710 {
		t.Errorf("daily used after free hits = %d, want 710", snap.DailyUsed)
	}

	// Every request produced exactly one audit entry, in order.
	entries, err := eng.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("recent audit: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("audit entries = %d, want 4", len(entries))
	}
	wantSources := []models.Source{
		models.SourceGeneration,
		models.SourceCache,
		models.SourceSimilarity,
		models.SourceCache,
	}
	for i, want := range wantSources {
		if entries[i].Source != want {
			t.Errorf("audit[%d].Source = %s, want %s", i, entries[i].Source, want)
		}
	}
	if entries[0].TokensCharged != 710 {
		t.Errorf("audit[0].TokensCharged = %d, want 710", entries[0].TokensCharged)
	}
	for _, e := range entries[1:] {
		if e.TokensCharged != 0 {
			t.Errorf("free hit audited %d charged tokens", e.TokensCharged)
		}
	}
}

func TestQuotaRejection(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{comp: provider.Completion{Text: artifactJSON, TokensIn: 400, TokensOut: 310}}
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	eng := newTestEngine(t, gen, emb)

	res, err := eng.Handle(ctx, "capped", "A brand new requirement about rate limiting")
	if err == nil {
		t.Fatal("expected quota error")
	}
	if !errors.Is(err, quota.ErrDailyLimit) {
		t.Errorf("err = %v, want ErrDailyLimit", err)
	}
	if res.Source != models.SourceQuotaRejected {
		t.Errorf("source = %s, want %s", res.Source, models.SourceQuotaRejected)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for rejected request", gen.calls)
	}

	snap, err := eng.Stats(ctx, "capped")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if snap.DailyUsed != 0 {
		t.Errorf("rejected request consumed %d tokens", snap.DailyUsed)
	}

	entries, err := eng.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("recent audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != models.SourceQuotaRejected {
		t.Errorf("expected one quota_rejected audit entry, got %+v", entries)
	}
}

func TestProviderFailureReleasesReservation(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	eng := newTestEngine(t, gen, emb)

	res, err := eng.Handle(ctx, "maya", "Requirement that will fail upstream")
	if err == nil {
		t.Fatal("expected provider error")
	}
	if res.Source != models.SourceError {
		t.Errorf("source = %s, want %s", res.Source, models.SourceError)
	}

	// The reservation is rolled back, so a later request starts clean.
	snap, err := eng.Stats(ctx, "maya")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if snap.DailyUsed != 0 {
		t.Errorf("failed generation left %d tokens charged", snap.DailyUsed)
	}

	// Nothing was written through.
	res2, err := eng.Handle(ctx, "maya", "Requirement that will fail upstream")
	if err == nil {
		t.Fatal("expected second provider error")
	}
	if res2.Source == models.SourceCache {
		t.Error("failed artifact was cached")
	}
}

func TestBelowThresholdGenerates(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{comp: provider.Completion{Text: artifactJSON, TokensIn: 400, TokensOut: 310}}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		reqExpiry: {1, 0},
		"Totally unrelated billing requirement": {0.2, 0.9798}, // cosine ~0.2
	}}
	eng := newTestEngine(t, gen, emb)

	if _, err := eng.Handle(ctx, "maya", reqExpiry); err != nil {
		t.Fatalf("seed generation: %v", err)
	}

	res, err := eng.Handle(ctx, "maya", "Totally unrelated billing requirement")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Source != models.SourceGeneration {
		t.Errorf("source = %s, want %s for below-threshold match", res.Source, models.SourceGeneration)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2", gen.calls)
	}
}

func TestAdaptArtifact(t *testing.T) {
	artifact := []byte(`{"req":"Reject expired tokens","step":"reject expired tokens now"}`)
	got := string(adaptArtifact(artifact, "Reject expired tokens", "Deny stale tokens"))
	if !strings.Contains(got, `"req":"Deny stale tokens"`) {
		t.Errorf("original form not adapted: %s", got)
	}
	if !strings.Contains(got, `"step":"deny stale tokens now"`) {
		t.Errorf("lowercased form not adapted: %s", got)
	}
}
