package store

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// KeywordIndex is a small inverted index with tf-idf scoring. It is the
// lexical half of hybrid search, catching exact-term matches that
// embedding similarity misses.
type KeywordIndex struct {
	mu   sync.RWMutex
	docs []indexedDoc
	df   map[string]int
}

type indexedDoc struct {
	text  string
	terms map[string]int
}

// ScoredText is a keyword search hit.
type ScoredText struct {
	Text  string
	Score float64
}

func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{df: make(map[string]int)}
}

func (k *KeywordIndex) Add(text string) {
	terms := termFrequencies(text)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.docs = append(k.docs, indexedDoc{text: text, terms: terms})
	for term := range terms {
		k.df[term]++
	}
}

// Search returns the topK documents ranked by summed tf-idf over the
// query terms. Documents with no overlapping term are omitted.
func (k *KeywordIndex) Search(query string, topK int) []ScoredText {
	queryTerms := termFrequencies(query)

	k.mu.RLock()
	defer k.mu.RUnlock()

	total := len(k.docs)
	hits := make([]ScoredText, 0, topK)
	for _, doc := range k.docs {
		var score float64
		for term := range queryTerms {
			tf := doc.terms[term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + float64(total)/float64(k.df[term]))
			score += float64(tf) * idf
		}
		if score > 0 {
			hits = append(hits, ScoredText{Text: doc.text, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

func termFrequencies(text string) map[string]int {
	terms := make(map[string]int)
	for _, token := range tokenize(text) {
		terms[token]++
	}
	return terms
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
