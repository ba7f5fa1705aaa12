package process

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultEncoding approximates the tokenizers of current chat models
const DefaultEncoding = "cl100k_base"

var encodings = map[string]tokenizer.Encoding{
	"cl100k_base": tokenizer.Cl100kBase,
	"o200k_base":  tokenizer.O200kBase,
	"p50k_base":   tokenizer.P50kBase,
	"p50k_edit":   tokenizer.P50kEdit,
	"r50k_base":   tokenizer.R50kBase,
}

// Tokenizer counts tokens with a tiktoken encoding. A nil *Tokenizer counts nothing.
type Tokenizer struct {
	name  string
	codec tokenizer.Codec
}

// NewTokenizer loads the named encoding; empty means DefaultEncoding
func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, ok := encodings[encoding]
	if !ok {
		return nil, fmt.Errorf("unknown tokenizer encoding '%s'", encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer '%s': %w", encoding, err)
	}
	return &Tokenizer{name: encoding, codec: codec}, nil
}

// Encoding returns the encoding name
func (t *Tokenizer) Encoding() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Count returns the token count of text, or -1 when t is nil or encoding fails, so callers
// can tell "not available" from a real zero
func (t *Tokenizer) Count(text string) int {
	if t == nil {
		return -1
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
