package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenizer(t *testing.T) {
	tok, err := NewTokenizer("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, tok.Encoding())

	tok, err = NewTokenizer("o200k_base")
	require.NoError(t, err)
	assert.Equal(t, "o200k_base", tok.Encoding())

	_, err = NewTokenizer("gpt-17")
	assert.Error(t, err)
}

func TestTokenizer_Count(t *testing.T) {
	tok, err := NewTokenizer(DefaultEncoding)
	require.NoError(t, err)

	assert.Zero(t, tok.Count(""))
	n := tok.Count("Hello, world!")
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, 10)

	long := tok.Count("The quick brown fox jumps over the lazy dog. The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, long, n)
}

func TestTokenizer_NilCountsNothing(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, -1, tok.Count("anything"))
	assert.Empty(t, tok.Encoding())
}
