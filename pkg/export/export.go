// Package export renders a mining batch for downstream flashcard tooling.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/dictionary"
	"github.com/japaniel/sentencebase/pkg/mining"
)

// Format names an output encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Glosser looks up dictionary definitions. *dictionary.Index implements it.
type Glosser interface {
	Definitions(dictionaryForm, reading string) []dictionary.DefinitionEntry
}

// Ranker gives a word's corpus frequency rank. *dictionary.FrequencyList implements it.
type Ranker interface {
	Rank(dictionaryForm, reading string) int
}

// Document is the exported form of one batch.
type Document struct {
	BatchID   int64     `json:"batch_id" yaml:"batch_id"`
	User      string    `json:"user" yaml:"user"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Entries   []Entry   `json:"entries" yaml:"entries"`
}

// Entry is one card: a sentence and the word it exemplifies.
type Entry struct {
	SentenceID     int64  `json:"sentence_id" yaml:"sentence_id"`
	Sentence       string `json:"sentence" yaml:"sentence"`
	DictionaryForm string `json:"dictionary_form" yaml:"dictionary_form"`
	Reading        string `json:"reading" yaml:"reading"`
	// Frequency is how often the user has met the word.
	Frequency int `json:"frequency" yaml:"frequency"`
	// CorpusRank is the word's position in the corpus frequency list, 0 first.
	CorpusRank  *int                         `json:"corpus_rank,omitempty" yaml:"corpus_rank,omitempty"`
	Definitions []dictionary.DefinitionEntry `json:"definitions,omitempty" yaml:"definitions,omitempty"`
}

// Build assembles the document. glosser and ranker may be nil.
func Build(batch db.MiningBatch, entries []mining.Entry, glosser Glosser, ranker Ranker) Document {
	doc := Document{
		BatchID:   batch.ID,
		User:      batch.UserID,
		CreatedAt: batch.CreatedAt.UTC(),
		Entries:   make([]Entry, 0, len(entries)),
	}
	for _, e := range entries {
		out := Entry{
			SentenceID:     e.SentenceID,
			Sentence:       e.Sentence,
			DictionaryForm: e.DictionaryForm,
			Reading:        e.Reading,
			Frequency:      e.Frequency,
		}
		if ranker != nil {
			rank := ranker.Rank(e.DictionaryForm, e.Reading)
			out.CorpusRank = &rank
		}
		if glosser != nil {
			out.Definitions = glosser.Definitions(e.DictionaryForm, e.Reading)
		}
		doc.Entries = append(doc.Entries, out)
	}
	return doc
}

// Write encodes the batch to w in the given format.
func Write(w io.Writer, format Format, batch db.MiningBatch, entries []mining.Entry, glosser Glosser, ranker Ranker) error {
	doc := Build(batch, entries, glosser, ranker)
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
