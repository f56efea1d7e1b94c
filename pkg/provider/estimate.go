package provider

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// responseBuffer is added to every estimate to cover the completion, whose
// length is unknown before the call.
const responseBuffer = 500

// Estimator approximates the token cost of a prompt for the quota pre-check.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator creates an Estimator using the cl100k_base encoding. If the
// encoding cannot be loaded, estimates fall back to a bytes/4 heuristic.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tiktoken encoding unavailable, using heuristic token estimates")
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Estimate returns the projected token cost of a request for the given text,
// including the response buffer.
func (e *Estimator) Estimate(text string) int {
	if e == nil || e.enc == nil {
		return len(text)/4 + responseBuffer
	}
	return len(e.enc.Encode(text, nil, nil)) + responseBuffer
}
