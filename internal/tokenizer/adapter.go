package tokenizer

// Adapter normalizes a Tokenizer to the interface the generation
// engine drives: tokenize/detokenize plus a handful of scalar token
// properties. EOD and vocab size are captured at construction; the
// rest delegates to the wrapped tokenizer. The adapter owns no other
// state and adds no error cases of its own.
type Adapter struct {
	tok       Tokenizer
	eod       int
	vocabSize int
}

// NewAdapter wraps tok.
func NewAdapter(tok Tokenizer) *Adapter {
	return &Adapter{
		tok:       tok,
		eod:       tok.EOD(),
		vocabSize: tok.VocabSize(),
	}
}

// Tokenize converts text into token ids.
func (a *Adapter) Tokenize(text string) ([]int, error) {
	return a.tok.TextToIDs(text)
}

// Detokenize converts token ids back into text.
func (a *Adapter) Detokenize(ids []int, removeSpecialTokens bool) (string, error) {
	return a.tok.IDsToText(ids, removeSpecialTokens)
}

func (a *Adapter) BOS() int { return a.tok.BOSID() }
func (a *Adapter) Pad() int { return a.tok.PadID() }
func (a *Adapter) EOD() int { return a.eod }

func (a *Adapter) VocabSize() int { return a.vocabSize }

func (a *Adapter) AdditionalSpecialTokenIDs() []int {
	return a.tok.AdditionalSpecialTokenIDs()
}
