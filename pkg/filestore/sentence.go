// Package filestore implements the storage server's per-file domain
// model: tokenization into sentences and words, metadata, ACLs, sentence
// locking, write sessions, undo, and checkpoints.
package filestore

import "strings"

// Delim is a sentence-terminating punctuation mark, or DelimNone if the
// sentence has not yet been sealed.
type Delim byte

const (
	DelimNone     Delim = 0
	DelimPeriod   Delim = '.'
	DelimQuestion Delim = '?'
	DelimBang     Delim = '!'
)

// IsTerminator reports whether b is a sentence-terminating character.
func IsTerminator(b byte) bool {
	return b == '.' || b == '?' || b == '!'
}

// isWordByte reports whether b can be part of a word: a letter, digit,
// underscore, hyphen, or apostrophe.
func isWordByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_':
		return true
	case b == '\'', b == '-':
		return true
	default:
		return false
	}
}

// Sentence is an ordered list of words plus a single terminating
// delimiter (or DelimNone if unsealed).
type Sentence struct {
	Words []string
	Delim Delim
}

// Sealed reports whether the sentence has a non-none delimiter.
func (s Sentence) Sealed() bool {
	return s.Delim != DelimNone
}

// Rebuild renders the sentence as "word1 word2 ... wordN<delim>", with
// exactly one space between words and no space before the delimiter.
func (s Sentence) Rebuild() string {
	var b strings.Builder
	for i, w := range s.Words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if s.Delim != DelimNone {
		b.WriteByte(byte(s.Delim))
	}
	return b.String()
}

// Tokenize scans raw bytes into an ordered list of sentences: a word is
// a maximal run of letters, digits, underscore, hyphen, or apostrophe;
// `. ? !` seal the current sentence; anything else separates without
// being preserved. A trailing unsealed sentence is kept with DelimNone.
func Tokenize(data []byte) []Sentence {
	var sentences []Sentence
	var words []string
	var word strings.Builder

	flushWord := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	flushSentence := func(delim Delim) {
		flushWord()
		if len(words) > 0 || delim != DelimNone {
			sentences = append(sentences, Sentence{Words: words, Delim: delim})
		}
		words = nil
	}

	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case IsTerminator(b):
			flushSentence(Delim(b))
		case isWordByte(b):
			word.WriteByte(b)
		default:
			flushWord()
		}
		i++
	}
	// Flush any trailing unterminated sentence.
	flushWord()
	if len(words) > 0 {
		sentences = append(sentences, Sentence{Words: words, Delim: DelimNone})
	}

	return sentences
}

// RebuildText renders the full sequence of sentences back to text, each
// sentence's Rebuild output joined with a single space.
func RebuildText(sentences []Sentence) string {
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s.Rebuild())
	}
	return b.String()
}

// WordCount returns the total number of words across all sentences.
func WordCount(sentences []Sentence) int {
	n := 0
	for _, s := range sentences {
		n += len(s.Words)
	}
	return n
}
