package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"pkai/internal/store"
)

const DefaultK = 4

// Snippet is one retrieved passage.
type Snippet struct {
	Source  string
	Content string
	Score   float64
}

// Searcher returns up to k passages relevant to query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

type chunkSource interface {
	Candidates(ctx context.Context, terms []string) ([]store.Chunk, error)
}

// Service ranks stored chunks by keyword overlap with the query.
type Service struct {
	store  chunkSource
	logger *slog.Logger
}

func NewService(st chunkSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: st, logger: logger.With("component", "retrieval")}
}

func (s *Service) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = DefaultK
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return []Snippet{}, nil
	}

	chunks, err := s.store.Candidates(ctx, terms)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk store.Chunk
		score float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		score := scoreChunk(c.Text, terms)
		if score <= 0 {
			continue
		}
		ranked = append(ranked, scored{chunk: c, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].chunk.RelPath != ranked[j].chunk.RelPath {
			return ranked[i].chunk.RelPath < ranked[j].chunk.RelPath
		}
		return ranked[i].chunk.Ordinal < ranked[j].chunk.Ordinal
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]Snippet, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Snippet{Source: r.chunk.RelPath, Content: r.chunk.Text, Score: r.score})
	}
	s.logger.Debug("search", "terms", len(terms), "candidates", len(chunks), "hits", len(out))
	return out, nil
}

// scoreChunk rewards chunks that cover more distinct terms first and repeat
// them second.
func scoreChunk(text string, terms []string) float64 {
	counts := make(map[string]int, len(terms))
	for _, tok := range tokenize(text) {
		counts[tok]++
	}
	matched := 0
	total := 0
	for _, term := range terms {
		if n := counts[term]; n > 0 {
			matched++
			total += n
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) + float64(total)/float64(total+1)
}

// Terms lowercases query, splits on non-alphanumerics and removes duplicates,
// stop words and single characters.
func Terms(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) < 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "did": true, "do": true, "does": true, "for": true,
	"from": true, "has": true, "have": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "me": true, "my": true, "of": true, "on": true, "or": true, "say": true,
	"says": true, "tell": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "you": true, "your": true,
}
