package dictionary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// FrequencyList ranks words by their position in a corpus frequency list.
// Rank 0 is the most frequent word.
type FrequencyList struct {
	ranks map[frequencyKey]int
}

type frequencyKey struct{ form, reading string }

// LoadFrequencyList reads a JSON array of [dictionary_form, reading] pairs,
// most frequent first.
func LoadFrequencyList(path string) (*FrequencyList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeFrequencyList(f)
}

// DecodeFrequencyList is LoadFrequencyList for an open stream.
func DecodeFrequencyList(r io.Reader) (*FrequencyList, error) {
	var pairs [][]string
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("failed to parse frequency list: %w", err)
	}
	fl := &FrequencyList{ranks: make(map[frequencyKey]int, len(pairs))}
	for i, p := range pairs {
		if len(p) < 2 {
			return nil, fmt.Errorf("frequency list entry %d: want [form, reading], got %d fields", i, len(p))
		}
		key := frequencyKey{p[0], ToHiragana(p[1])}
		if _, dup := fl.ranks[key]; !dup {
			fl.ranks[key] = i
		}
	}
	return fl, nil
}

// Len returns the number of ranked words.
func (fl *FrequencyList) Len() int { return len(fl.ranks) }

// Lowest is the rank given to words missing from the list.
func (fl *FrequencyList) Lowest() int { return len(fl.ranks) + 1 }

// Rank returns the corpus rank of (dictionaryForm, reading), or Lowest when
// the word is not listed. Readings are compared in hiragana.
func (fl *FrequencyList) Rank(dictionaryForm, reading string) int {
	if r, ok := fl.ranks[frequencyKey{dictionaryForm, ToHiragana(reading)}]; ok {
		return r
	}
	return fl.Lowest()
}
