package engine

// DefaultNumTokensToGenerate applies when a generation call supplies
// no inference parameters.
const DefaultNumTokensToGenerate = 512

// CommonParams are the per-call inference parameters shared by both
// controllers.
type CommonParams struct {
	Temperature         float64
	TopK                int
	TopP                float64
	ReturnLogProbs      bool
	NumTokensToGenerate int
}

// DefaultParams returns the parameters used when a caller supplies
// none: plain temperature-1 sampling, 512 tokens.
func DefaultParams() CommonParams {
	return CommonParams{
		Temperature:         1.0,
		NumTokensToGenerate: DefaultNumTokensToGenerate,
	}
}
