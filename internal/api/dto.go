package api

// GenerateRequest mirrors the generation input contract: prompts are
// required, everything else is optional.
type GenerateRequest struct {
	Prompts             []string `json:"prompts"`
	EncoderPrompts      []string `json:"encoder_prompts,omitempty"`
	AddBOS              bool     `json:"add_bos,omitempty"`
	MaxBatchSize        int      `json:"max_batch_size,omitempty"`
	RandomSeed          *int64   `json:"random_seed,omitempty"`
	NumTokensToGenerate *int     `json:"num_tokens_to_generate,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	ReturnLogProbs      bool     `json:"return_log_probs,omitempty"`
}

type GenerateResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Results []GenerateResult `json:"results"`
}

type GenerateResult struct {
	Index           int       `json:"index"`
	Prompt          string    `json:"prompt"`
	GeneratedText   string    `json:"generated_text"`
	GeneratedTokens []int     `json:"generated_tokens"`
	LogProbs        []float32 `json:"log_probs,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
