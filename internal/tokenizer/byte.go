package tokenizer

import (
	"fmt"
	"strings"
)

// Byte-level reference tokenizer. Every byte maps to a fixed id after
// a small block of special tokens, so any text round-trips exactly.
// It exists so a restored model can run end to end without an external
// vocabulary artifact.

const (
	bytePadID = 0
	byteBOSID = 1
	byteEODID = 2

	byteSpecialCount = 3
)

// ByteVocabSize is the vocabulary of ByteTokenizer: the special block
// plus all 256 byte values.
const ByteVocabSize = byteSpecialCount + 256

type ByteTokenizer struct{}

func NewByteTokenizer() *ByteTokenizer {
	return &ByteTokenizer{}
}

func (t *ByteTokenizer) TextToIDs(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, b := range []byte(text) {
		ids = append(ids, byteSpecialCount+int(b))
	}
	return ids, nil
}

func (t *ByteTokenizer) IDsToText(ids []int, removeSpecialTokens bool) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= ByteVocabSize {
			return "", fmt.Errorf("token id %d out of range", id)
		}
		if id < byteSpecialCount {
			if removeSpecialTokens {
				continue
			}
			sb.WriteString(specialTokenText(id))
			continue
		}
		sb.WriteByte(byte(id - byteSpecialCount))
	}
	return sb.String(), nil
}

func (t *ByteTokenizer) EOD() int       { return byteEODID }
func (t *ByteTokenizer) VocabSize() int { return ByteVocabSize }
func (t *ByteTokenizer) BOSID() int     { return byteBOSID }
func (t *ByteTokenizer) PadID() int     { return bytePadID }

func (t *ByteTokenizer) AdditionalSpecialTokenIDs() []int { return nil }

func specialTokenText(id int) string {
	switch id {
	case bytePadID:
		return "<pad>"
	case byteBOSID:
		return "<bos>"
	case byteEODID:
		return "<eod>"
	default:
		return ""
	}
}
