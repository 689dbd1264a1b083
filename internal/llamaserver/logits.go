package llamaserver

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"llamad/pkg/types"
)

// logitsRetries bounds the immediate re-requests for a response missing
// completion_probabilities; the endpoint is occasionally transiently empty
// right after server start. No delay between attempts: observed behavior is
// an immediate retry.
const logitsRetries = 5

type tokenProbWire struct {
	ID      int     `json:"id"`
	Token   string  `json:"token"`
	Prob    float64 `json:"prob"`
	Logprob float64 `json:"logprob"`
}

type logitsResponse struct {
	CompletionProbabilities []struct {
		TopProbs    []tokenProbWire `json:"top_probs"`
		TopLogprobs []tokenProbWire `json:"top_logprobs"`
	} `json:"completion_probabilities"`
}

// Logits queries the probabilities (or raw log-probabilities, when
// useSamplers is false) of the next token after prompt, without generating.
func (s *Server) Logits(ctx context.Context, prompt string, gc *types.GenerationConfig, nProbs int, useSamplers bool) ([]types.TokenProb, error) {
	payload, err := preparePayload(gc)
	if err != nil {
		return nil, err
	}
	tokens, err := s.Encode(ctx, prompt, gc.AddBOSToken)
	if err != nil {
		return nil, err
	}
	payload["prompt"] = tokens
	payload["n_predict"] = 0
	payload["logprobs"] = true
	payload["n_probs"] = nProbs
	payload["stream"] = false
	payload["post_sampling_probs"] = useSamplers

	var lastErr error
	for attempt := 0; attempt < logitsRetries; attempt++ {
		var result logitsResponse
		if err := s.client.postJSON(ctx, "/completion", payload, &result); err != nil {
			return nil, fmt.Errorf("logits request: %w", err)
		}
		if len(result.CompletionProbabilities) > 0 {
			first := result.CompletionProbabilities[0]
			if useSamplers {
				return convertTokenProbs(first.TopProbs), nil
			}
			return convertTokenProbs(first.TopLogprobs), nil
		}
		logitsRetriesTotal.Inc()
		body, _ := json.Marshal(result)
		lastErr = &transientResponseError{field: "completion_probabilities", body: string(body)}
	}
	return nil, lastErr
}

func convertTokenProbs(wire []tokenProbWire) []types.TokenProb {
	out := make([]types.TokenProb, len(wire))
	for i, w := range wire {
		out[i] = types.TokenProb{Token: w.Token, Prob: w.Prob, Logprob: w.Logprob}
	}
	return out
}
