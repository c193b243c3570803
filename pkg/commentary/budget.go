package commentary

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when the model is unknown to tiktoken.
const fallbackEncoding = "cl100k_base"

// Tokenizer splits text into model tokens.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer returns the encoding for model, or cl100k_base for
// models tiktoken does not know (most non-OpenAI models).
func NewTiktokenTokenizer(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s encoding: %w", fallbackEncoding, err)
		}
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// runeTokenizer treats every rune as a token. It over-counts, which is
// the safe direction for a budget.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func (runeTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

// Truncate cuts text to at most max tokens. It reports whether text was cut.
func Truncate(tok Tokenizer, text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	tokens := tok.Encode(text)
	if len(tokens) <= max {
		return text, false
	}
	return tok.Decode(tokens[:max]), true
}
