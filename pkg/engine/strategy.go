package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/froth-ops/froth/pkg/models"
)

// cacheStrategy resolves exact repeats by fingerprint. Hits are free.
type cacheStrategy struct {
	e *Engine
}

func (s *cacheStrategy) name() string { return "cache" }

func (s *cacheStrategy) lookup(_ context.Context, req *request) (*models.Result, error) {
	entry, ok := s.e.cache.Get(req.fingerprint)
	if !ok {
		return nil, nil
	}
	return &models.Result{
		Source:    models.SourceCache,
		Artifact:  entry.Artifact,
		TokensIn:  entry.TokensIn,
		TokensOut: entry.TokensOut,
		CostUSD:   entry.CostUSD,
	}, nil
}

// similarityStrategy resolves paraphrased requirements by embedding the
// incoming text and scanning the index for the closest stored requirement.
// A hit adapts the stored artifact and writes it through under the new
// fingerprint so the next identical request resolves from cache.
type similarityStrategy struct {
	e *Engine
}

func (s *similarityStrategy) name() string { return "similarity" }

func (s *similarityStrategy) lookup(ctx context.Context, req *request) (*models.Result, error) {
	e := s.e
	if e.embedder == nil || e.index == nil || e.threshold <= 0 {
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, req.text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	req.embedding = vec

	matches, err := e.index.Nearest(vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("index scan: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	top := matches[0]
	if top.Score < e.threshold {
		return nil, nil
	}

	adapted := adaptArtifact(top.Record.Artifact, top.Record.Requirement, req.text)
	s.writeThrough(req, adapted, vec)

	return &models.Result{
		Source:          models.SourceSimilarity,
		Artifact:        adapted,
		SimilarityScore: top.Score,
	}, nil
}

// writeThrough stores the adapted artifact under the new fingerprint. The
// index copy lets future paraphrases match the new phrasing directly.
func (s *similarityStrategy) writeThrough(req *request, adapted []byte, vec []float32) {
	e := s.e
	err := e.cache.Put(models.CacheEntry{
		Fingerprint: req.fingerprint,
		Artifact:    adapted,
		Model:       e.model,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("similarity cache write-through failed")
	}
	err = e.index.Insert(models.IndexRecord{
		Fingerprint: req.fingerprint,
		Requirement: req.text,
		Artifact:    adapted,
		Embedding:   vec,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", req.id).Msg("similarity index write-through failed")
	}
}

// adaptArtifact rewrites occurrences of the matched requirement text, in
// original and lowercased forms, to the incoming requirement. A best-effort
// textual adaptation, not a regeneration.
func adaptArtifact(artifact []byte, from, to string) []byte {
	s := string(artifact)
	s = strings.ReplaceAll(s, from, to)
	s = strings.ReplaceAll(s, strings.ToLower(from), strings.ToLower(to))
	return []byte(s)
}
