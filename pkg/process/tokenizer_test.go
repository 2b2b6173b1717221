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

	_, err = NewTokenizer("bogus_base")
	assert.Error(t, err)
}

func TestTokenizer_Count(t *testing.T) {
	tok, err := NewTokenizer("cl100k_base")
	require.NoError(t, err)

	assert.Equal(t, 0, tok.Count(""))
	assert.Positive(t, tok.Count("Oceansat-2 carries an ocean colour monitor."))
	assert.Greater(t, tok.Count("one two three four five six"), tok.Count("one two"))
}

func TestTokenizer_NilEstimates(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, "estimate", tok.Encoding())
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 2, tok.Count("12345678"))
	assert.Equal(t, 1, tok.Count("ab"))
}
