package dictionary

import "sort"

// Index answers gloss lookups by dictionary form and reading. It is built
// once and never mutated, so it is safe for concurrent use.
type Index struct {
	// Key: Kanji or Kana text. Value: entries containing it.
	entries map[string][]JMdictEntry
}

// NewIndex builds an in-memory index of the provided dictionary.
func NewIndex(entries []JMdictEntry) *Index {
	idx := make(map[string][]JMdictEntry)
	add := func(text string, e JMdictEntry) {
		if !containsID(idx[text], e.Id) {
			idx[text] = append(idx[text], e)
		}
	}
	for _, e := range entries {
		for _, k := range e.Kanji {
			add(k.Text, e)
		}
		// Kana-only words and kanji words sharing a kana spelling both land here.
		for _, k := range e.Kana {
			add(k.Text, e)
		}
	}
	return &Index{entries: idx}
}

func containsID(entries []JMdictEntry, id string) bool {
	for _, e := range entries {
		if e.Id == id {
			return true
		}
	}
	return false
}

// Len returns the number of distinct spellings indexed.
func (ix *Index) Len() int { return len(ix.entries) }

// Lookup returns the entries spelled dictionaryForm whose kana include
// reading. Readings are compared in hiragana; an empty reading matches any.
// Results are ordered by entry id.
func (ix *Index) Lookup(dictionaryForm, reading string) []JMdictEntry {
	var results []JMdictEntry
	for _, entry := range ix.entries[dictionaryForm] {
		if hasReading(entry, reading) {
			results = append(results, entry)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Id < results[j].Id
	})
	return results
}

// Definitions returns the flattened senses of every matching entry.
func (ix *Index) Definitions(dictionaryForm, reading string) []DefinitionEntry {
	return FormatDefinitions(ix.Lookup(dictionaryForm, reading))
}

// Glosses returns the English glosses of every matching entry in order.
func (ix *Index) Glosses(dictionaryForm, reading string) []string {
	var out []string
	for _, d := range ix.Definitions(dictionaryForm, reading) {
		out = append(out, d.Senses...)
	}
	return out
}

func hasReading(entry JMdictEntry, reading string) bool {
	if reading == "" {
		return true
	}
	want := ToHiragana(reading)
	for _, k := range entry.Kana {
		if ToHiragana(k.Text) == want {
			return true
		}
	}
	return false
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}

// FormatDefinitions flattens entries into glosses and parts of speech.
func FormatDefinitions(entries []JMdictEntry) []DefinitionEntry {
	var defs []DefinitionEntry
	for _, e := range entries {
		var d DefinitionEntry
		for _, s := range e.Sense {
			for _, g := range s.Gloss {
				if g.Lang != "" && g.Lang != "eng" {
					continue
				}
				d.Senses = append(d.Senses, g.Text)
			}
			d.POS = append(d.POS, s.PartOfSpeech...)
		}
		defs = append(defs, d)
	}
	return defs
}
