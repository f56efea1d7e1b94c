package models

// Source identifies which pipeline stage produced a result.
type Source string

const (
	SourceCache         Source = "cache"
	SourceSimilarity    Source = "vector_similarity"
	SourceGeneration    Source = "generation"
	SourceQuotaRejected Source = "quota_rejected"
	SourceError         Source = "error"
)

// Result is the outcome of routing a single requirement through the pipeline.
//
// TokensIn, TokensOut and CostUSD report the cost of originally producing the
// artifact, even on cache hits where nothing was spent this call.
// TokensCharged is what was actually deducted from the user's quota: zero for
// cache and similarity hits, prompt+completion tokens for a generation.
type Result struct {
	RequestID       string  `json:"request_id"`
	Source          Source  `json:"source"`
	Artifact        []byte  `json:"artifact,omitempty"`
	TokensIn        int     `json:"tokens_in"`
	TokensOut       int     `json:"tokens_out"`
	TokensCharged   int     `json:"tokens_charged"`
	CostUSD         float64 `json:"cost_usd"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`
	LatencyMs       int64   `json:"latency_ms"`
}
