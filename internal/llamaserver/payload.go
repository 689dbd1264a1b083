package llamaserver

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"llamad/pkg/types"
)

// samplerNames is the set of sampler-priority entries llama-server accepts
// directly. typical_p and repetition_penalty need renaming on the wire.
var samplerNames = map[string]struct{}{
	"dry":         {},
	"top_k":       {},
	"top_p":       {},
	"top_n_sigma": {},
	"min_p":       {},
	"temperature": {},
	"xtc":         {},
}

// preparePayload translates a GenerationConfig into the /completion sampling
// parameters. Pure: the same config always yields the same payload and the
// config is never mutated.
func preparePayload(gc *types.GenerationConfig) (map[string]any, error) {
	temperature := gc.Temperature
	dynatempRange := 0.0
	if gc.DynamicTemperature {
		temperature = (gc.DynatempLow + gc.DynatempHigh) / 2
		dynatempRange = (gc.DynatempHigh - gc.DynatempLow) / 2
	}

	topNSigma := gc.TopNSigma
	if topNSigma <= 0 {
		topNSigma = -1 // negative sentinel disables the sampler
	}

	payload := map[string]any{
		"temperature":        temperature,
		"dynatemp_range":     dynatempRange,
		"dynatemp_exponent":  gc.DynatempExponent,
		"top_k":              gc.TopK,
		"top_p":              gc.TopP,
		"min_p":              gc.MinP,
		"top_n_sigma":        topNSigma,
		"typical_p":          gc.TypicalP,
		"repeat_penalty":     gc.RepetitionPenalty,
		"repeat_last_n":      gc.RepetitionPenaltyRange,
		"presence_penalty":   gc.PresencePenalty,
		"frequency_penalty":  gc.FrequencyPenalty,
		"dry_multiplier":     gc.DryMultiplier,
		"dry_base":           gc.DryBase,
		"dry_allowed_length": gc.DryAllowedLength,
		"dry_penalty_last_n": gc.RepetitionPenaltyRange,
		"xtc_probability":    gc.XTCProbability,
		"xtc_threshold":      gc.XTCThreshold,
		"mirostat":           gc.MirostatMode,
		"mirostat_tau":       gc.MirostatTau,
		"mirostat_eta":       gc.MirostatEta,
		"grammar":            gc.GrammarString,
		"seed":               gc.Seed,
		"ignore_eos":         gc.BanEOSToken,
	}

	breakers, err := parseSequenceBreakers(gc.DrySequenceBreakers)
	if err != nil {
		return nil, err
	}
	payload["dry_sequence_breakers"] = breakers

	if len(gc.SamplerPriority) > 0 {
		payload["samplers"] = mapSamplerPriority(gc.SamplerPriority, gc.TemperatureLast)
	}

	if gc.CustomTokenBans != "" {
		bans, err := parseTokenBans(gc.CustomTokenBans)
		if err != nil {
			return nil, err
		}
		payload["logit_bias"] = bans
	}

	return payload, nil
}

// parseSequenceBreakers normalizes the DRY sequence-breaker list: a bare
// comma list is bracketed into JSON array form before decoding.
func parseSequenceBreakers(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(s, "[") {
		s = "[" + s + "]"
	}
	var breakers []string
	if err := json.Unmarshal([]byte(s), &breakers); err != nil {
		return nil, fmt.Errorf("dry_sequence_breakers is not a JSON string array: %w", err)
	}
	return breakers, nil
}

// mapSamplerPriority filters the human-named priority list down to the wire
// names: typical_p becomes typ_p, the first repetition_penalty becomes
// penalties (duplicates dropped), unknown entries are dropped. When
// temperatureLast is set, temperature moves to the end of the result.
func mapSamplerPriority(priority []string, temperatureLast bool) []string {
	filtered := make([]string, 0, len(priority))
	penaltyFound := false
	for _, s := range priority {
		name := strings.TrimSpace(s)
		switch {
		case name == "typical_p":
			filtered = append(filtered, "typ_p")
		case name == "repetition_penalty":
			if !penaltyFound {
				filtered = append(filtered, "penalties")
				penaltyFound = true
			}
		default:
			if _, ok := samplerNames[name]; ok {
				filtered = append(filtered, name)
			}
		}
	}

	if temperatureLast {
		for i, name := range filtered {
			if name == "temperature" {
				filtered = append(filtered[:i], filtered[i+1:]...)
				filtered = append(filtered, "temperature")
				break
			}
		}
	}
	return filtered
}

// parseTokenBans converts "15,73" into [[15,false],[73,false]] pairs, the
// logit_bias form that hard-bans each token.
func parseTokenBans(raw string) ([][2]any, error) {
	parts := strings.Split(raw, ",")
	bans := make([][2]any, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("custom_token_bans entry %q: %w", p, err)
		}
		bans = append(bans, [2]any{id, false})
	}
	return bans, nil
}
