package process

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultEncoding approximates the token counts of current embedding models
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens with a tiktoken codec. A nil *Tokenizer falls back to
// a rune-based estimate so callers never need to special-case it.
type Tokenizer struct {
	codec    tokenizer.Codec
	encoding string
}

// NewTokenizer loads the named encoding; an empty name selects DefaultEncoding
func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	var enc tokenizer.Encoding
	switch encoding {
	case "cl100k_base":
		enc = tokenizer.Cl100kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "r50k_base":
		enc = tokenizer.R50kBase
	default:
		return nil, fmt.Errorf("unsupported token encoding '%s'", encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("loading token encoding '%s': %w", encoding, err)
	}
	return &Tokenizer{codec: codec, encoding: encoding}, nil
}

// Encoding returns the encoding name, or "estimate" for a nil tokenizer
func (t *Tokenizer) Encoding() string {
	if t == nil {
		return "estimate"
	}
	return t.encoding
}

// Count returns the number of tokens in text
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t == nil || t.codec == nil {
		return estimateTokens(text)
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return estimateTokens(text)
	}
	return len(ids)
}

// estimateTokens assumes roughly four runes per token
func estimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
