// Package dictionary provides English glosses from JMdict (jmdict-simplified)
// and corpus frequency ranks for exported batches.
package dictionary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JMdictEntry matches the structure of jmdict-simplified entries.
type JMdictEntry struct {
	Id    string          `json:"id"`
	Kanji []JMdictElement `json:"kanji"`
	Kana  []JMdictElement `json:"kana"`
	Sense []JMdictSense   `json:"sense"`
}

type JMdictElement struct {
	Text   string   `json:"text"`
	Common bool     `json:"common"`
	Tags   []string `json:"tags"`
}

type JMdictSense struct {
	PartOfSpeech []string      `json:"partOfSpeech"`
	Gloss        []JMdictGloss `json:"gloss"`
}

type JMdictGloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// DefinitionEntry is the flattened form of one entry used in exports.
type DefinitionEntry struct {
	Senses []string `json:"senses" yaml:"senses"`
	POS    []string `json:"pos" yaml:"pos"`
}

// LoadJMdictSimplified reads a dictionary file, either the release object
// { "words": [...] } or a bare array of entries.
func LoadJMdictSimplified(path string) ([]JMdictEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeJMdictSimplified(f)
}

// DecodeJMdictSimplified is LoadJMdictSimplified for an open stream.
func DecodeJMdictSimplified(r io.ReadSeeker) ([]JMdictEntry, error) {
	var wrapped struct {
		Words []JMdictEntry `json:"words"`
	}
	if err := json.NewDecoder(r).Decode(&wrapped); err == nil && len(wrapped.Words) > 0 {
		return wrapped.Words, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var entries []JMdictEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary as object or array: %w", err)
	}
	return entries, nil
}
