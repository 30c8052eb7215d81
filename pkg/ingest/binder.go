package ingest

import (
	"errors"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/tokenize"
)

// ErrNoWord is returned when a sentence yields no token to bind it to.
var ErrNoWord = errors.New("sentence contains no bindable word")

// WordHint names the word a sentence was submitted for. An empty Reading
// matches any reading of DictionaryForm.
type WordHint struct {
	DictionaryForm string
	Reading        string
}

func (h WordHint) matches(t tokenize.Token) bool {
	if h.DictionaryForm != t.DictionaryForm {
		return false
	}
	return h.Reading == "" || h.Reading == t.Reading
}

// Binder selects which token of a sentence it exemplifies and returns the
// token's index.
type Binder interface {
	Bind(tokens []tokenize.Token, hint *WordHint) (int, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(tokens []tokenize.Token, hint *WordHint) (int, error)

func (f BinderFunc) Bind(tokens []tokenize.Token, hint *WordHint) (int, error) {
	return f(tokens, hint)
}

// HintOrFirst binds to the first token matching the hint, or to the first
// token when there is no hint.
var HintOrFirst Binder = BinderFunc(func(tokens []tokenize.Token, hint *WordHint) (int, error) {
	if len(tokens) == 0 {
		return 0, ErrNoWord
	}
	if hint == nil {
		return 0, nil
	}
	for i, t := range tokens {
		if hint.matches(t) {
			return i, nil
		}
	}
	return 0, &db.NotFoundError{Entity: "word", ID: hint.DictionaryForm}
})
