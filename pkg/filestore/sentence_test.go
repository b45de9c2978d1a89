package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Sentence
	}{
		{
			name: "single sealed sentence",
			in:   "The cat sat.",
			want: []Sentence{{Words: []string{"The", "cat", "sat"}, Delim: DelimPeriod}},
		},
		{
			name: "question and exclamation",
			in:   "Who ate it? Nobody!",
			want: []Sentence{
				{Words: []string{"Who", "ate", "it"}, Delim: DelimQuestion},
				{Words: []string{"Nobody"}, Delim: DelimBang},
			},
		},
		{
			name: "trailing unsealed sentence kept",
			in:   "Done. And now",
			want: []Sentence{
				{Words: []string{"Done"}, Delim: DelimPeriod},
				{Words: []string{"And", "now"}, Delim: DelimNone},
			},
		},
		{
			name: "hyphenated and apostrophe words",
			in:   "state-of-the-art and don't stop.",
			want: []Sentence{
				{Words: []string{"state-of-the-art", "and", "don't", "stop"}, Delim: DelimPeriod},
			},
		},
		{
			name: "lone hyphen between spaces is its own word",
			in:   "a - b.",
			want: []Sentence{{Words: []string{"a", "-", "b"}, Delim: DelimPeriod}},
		},
		{
			name: "lone apostrophe between spaces is its own word",
			in:   "' quoted '.",
			want: []Sentence{{Words: []string{"'", "quoted", "'"}, Delim: DelimPeriod}},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize([]byte(tt.in)))
		})
	}
}

func TestTokenizeRebuildIdempotent(t *testing.T) {
	inputs := []string{
		"The cat sat.",
		"Who ate it? Nobody!",
		"state-of-the-art and don't stop.",
	}
	for _, in := range inputs {
		sentences := Tokenize([]byte(in))
		rebuilt := RebuildText(sentences)
		assert.Equal(t, sentences, Tokenize([]byte(rebuilt)), "retokenizing a rebuild must reproduce the same sentences for %q", in)
	}
}

func TestSentenceRebuild(t *testing.T) {
	s := Sentence{Words: []string{"one", "two"}, Delim: DelimPeriod}
	assert.Equal(t, "one two.", s.Rebuild())

	unsealed := Sentence{Words: []string{"one"}, Delim: DelimNone}
	assert.Equal(t, "one", unsealed.Rebuild())
}

func TestWordCount(t *testing.T) {
	sentences := Tokenize([]byte("The cat sat. Who ate it?"))
	require.Len(t, sentences, 2)
	assert.Equal(t, 6, WordCount(sentences))
}
