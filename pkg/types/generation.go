package types

import "strings"

// GenerationConfig is the flat record of sampling and runtime parameters
// supplied per generation call. Callers construct one per request; this
// package never mutates it. Field names follow the llama-server sampling
// surface; the wire translation lives in internal/llamaserver.
type GenerationConfig struct {
	Temperature        float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	DynamicTemperature bool    `json:"dynamic_temperature" yaml:"dynamic_temperature" toml:"dynamic_temperature"`
	DynatempLow        float64 `json:"dynatemp_low" yaml:"dynatemp_low" toml:"dynatemp_low"`
	DynatempHigh       float64 `json:"dynatemp_high" yaml:"dynatemp_high" toml:"dynatemp_high"`
	DynatempExponent   float64 `json:"dynatemp_exponent" yaml:"dynatemp_exponent" toml:"dynatemp_exponent"`

	TopK      int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP      float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MinP      float64 `json:"min_p" yaml:"min_p" toml:"min_p"`
	TopNSigma float64 `json:"top_n_sigma" yaml:"top_n_sigma" toml:"top_n_sigma"`
	TypicalP  float64 `json:"typical_p" yaml:"typical_p" toml:"typical_p"`

	RepetitionPenalty      float64 `json:"repetition_penalty" yaml:"repetition_penalty" toml:"repetition_penalty"`
	RepetitionPenaltyRange int     `json:"repetition_penalty_range" yaml:"repetition_penalty_range" toml:"repetition_penalty_range"`
	PresencePenalty        float64 `json:"presence_penalty" yaml:"presence_penalty" toml:"presence_penalty"`
	FrequencyPenalty       float64 `json:"frequency_penalty" yaml:"frequency_penalty" toml:"frequency_penalty"`

	// DRY sampling. DrySequenceBreakers is a JSON array of strings, with or
	// without the surrounding brackets ("\"a\",\"b\"" and "[\"a\",\"b\"]" are
	// both accepted).
	DryMultiplier       float64 `json:"dry_multiplier" yaml:"dry_multiplier" toml:"dry_multiplier"`
	DryBase             float64 `json:"dry_base" yaml:"dry_base" toml:"dry_base"`
	DryAllowedLength    int     `json:"dry_allowed_length" yaml:"dry_allowed_length" toml:"dry_allowed_length"`
	DrySequenceBreakers string  `json:"dry_sequence_breakers" yaml:"dry_sequence_breakers" toml:"dry_sequence_breakers"`

	XTCProbability float64 `json:"xtc_probability" yaml:"xtc_probability" toml:"xtc_probability"`
	XTCThreshold   float64 `json:"xtc_threshold" yaml:"xtc_threshold" toml:"xtc_threshold"`

	MirostatMode int     `json:"mirostat_mode" yaml:"mirostat_mode" toml:"mirostat_mode"`
	MirostatTau  float64 `json:"mirostat_tau" yaml:"mirostat_tau" toml:"mirostat_tau"`
	MirostatEta  float64 `json:"mirostat_eta" yaml:"mirostat_eta" toml:"mirostat_eta"`

	GrammarString string `json:"grammar_string,omitempty" yaml:"grammar_string" toml:"grammar_string"`
	Seed          int64  `json:"seed" yaml:"seed" toml:"seed"`
	BanEOSToken   bool   `json:"ban_eos_token" yaml:"ban_eos_token" toml:"ban_eos_token"`

	// SamplerPriority orders the server-side sampler chain. Empty means
	// "server default order". Use SplitSamplerPriority to convert the
	// newline-separated form accepted by config files.
	SamplerPriority []string `json:"sampler_priority,omitempty" yaml:"sampler_priority" toml:"sampler_priority"`
	TemperatureLast bool     `json:"temperature_last" yaml:"temperature_last" toml:"temperature_last"`

	// CustomTokenBans is a comma-separated list of token ids to ban.
	CustomTokenBans string `json:"custom_token_bans,omitempty" yaml:"custom_token_bans" toml:"custom_token_bans"`

	TruncationLength int  `json:"truncation_length" yaml:"truncation_length" toml:"truncation_length"`
	AutoMaxNewTokens bool `json:"auto_max_new_tokens" yaml:"auto_max_new_tokens" toml:"auto_max_new_tokens"`
	MaxNewTokens     int  `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	AddBOSToken      bool `json:"add_bos_token" yaml:"add_bos_token" toml:"add_bos_token"`
}

// SplitSamplerPriority converts the newline-separated sampler-priority form
// (as typed into config files) into the list form, dropping blank entries.
func SplitSamplerPriority(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultGenerationConfig returns the baseline sampling parameters used when
// a caller does not override them.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:            0.7,
		DynatempLow:            1,
		DynatempHigh:           1,
		DynatempExponent:       1,
		TopK:                   20,
		TopP:                   0.9,
		TypicalP:               1,
		RepetitionPenalty:      1.15,
		RepetitionPenaltyRange: 1024,
		DryBase:                1.75,
		DryAllowedLength:       2,
		DrySequenceBreakers:    `"\n", ":", "\"", "*"`,
		XTCThreshold:           0.1,
		MirostatTau:            5,
		MirostatEta:            0.1,
		Seed:                   -1,
		TruncationLength:       8192,
		MaxNewTokens:           512,
		AddBOSToken:            true,
	}
}
