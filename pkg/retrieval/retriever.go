// Package retrieval supplies context passages for ensemble prompts. The
// default store is an in-memory corpus scored by token overlap; an HTTP
// retriever delegates to an external search service.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// Retriever returns up to topK passages relevant to the query. An empty
// result is valid; analyses proceed without retrieved context.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]contracts.Passage, error)
}

// RetrievalError reports a failed call to an external retrieval service.
type RetrievalError struct {
	StatusCode int
	Retryable  bool
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: service status %d", e.StatusCode)
}

// MemoryStore is a token-overlap retriever over an in-process corpus.
// Scoring counts distinct query tokens present in a passage; ties break
// by insertion order so results are deterministic.
type MemoryStore struct {
	mu       sync.RWMutex
	passages []contracts.Passage
}

// NewMemoryStore creates an empty corpus.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends passages to the corpus.
func (s *MemoryStore) Add(passages ...contracts.Passage) {
	s.mu.Lock()
	s.passages = append(s.passages, passages...)
	s.mu.Unlock()
}

// Len reports the corpus size.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

func (s *MemoryStore) Retrieve(_ context.Context, query string, topK int) ([]contracts.Passage, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		passage contracts.Passage
		score   int
		order   int
	}
	candidates := make([]scored, 0, len(s.passages))
	for i, p := range s.passages {
		score := overlap(queryTokens, tokenize(p.Content))
		if score > 0 {
			candidates = append(candidates, scored{passage: p, score: score, order: i})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]contracts.Passage, len(candidates))
	for i, c := range candidates {
		out[i] = c.passage
	}
	return out, nil
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}

func overlap(query, doc map[string]struct{}) int {
	n := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			n++
		}
	}
	return n
}
