package tokenizer

// Tokenizer is the framework-facing tokenizer surface a restored model
// exposes. The generation engine never consumes this directly; it goes
// through Adapter.
type Tokenizer interface {
	TextToIDs(text string) ([]int, error)
	IDsToText(ids []int, removeSpecialTokens bool) (string, error)
	EOD() int
	VocabSize() int
	BOSID() int
	PadID() int
	AdditionalSpecialTokenIDs() []int
}
