// Package search is the similarity oracle behind the knowledge store: a small,
// deterministic, concurrency-safe in-memory index over tenant documents.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for tokenization and scoring
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Two scorers are provided. Jaccard compares the query token set with a
// document token set (|Q ∩ D| / |Q ∪ D|) and suits question-to-question
// matching. Coverage measures how much of the query a document contains
// (|Q ∩ D| / |Q|) and suits ranking longer content chunks.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Document is one indexable unit. ID and Source are opaque to the index and
// returned with each hit.
type Document struct {
	ID     string
	Text   string
	Source string
}

// Result is a ranked document with its similarity score in [0,1].
type Result struct {
	Doc   Document
	Score float64
}

// Scorer turns an overlap count and the two set sizes into a score.
type Scorer func(overlap, queryLen, docLen int) float64

// Jaccard scores |Q ∩ D| / |Q ∪ D|.
func Jaccard(overlap, queryLen, docLen int) float64 {
	union := queryLen + docLen - overlap
	if union <= 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}

// Coverage scores |Q ∩ D| / |Q|.
func Coverage(overlap, queryLen, _ int) float64 {
	if queryLen <= 0 {
		return 0
	}
	return float64(overlap) / float64(queryLen)
}

// Option configures an Index.
type Option func(*config)

type config struct {
	minRunes  int
	stopwords map[string]struct{}
	scorer    Scorer
}

func defaultConfig() config {
	return config{
		minRunes:  0,
		stopwords: defaultStopwords,
		scorer:    Jaccard,
	}
}

// WithMinRunes drops documents shorter than n runes.
func WithMinRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

// WithStopwords replaces the built-in English stop-word list. An empty list
// disables stop-word removal.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) == 0 {
			c.stopwords = nil
			return
		}
		c.stopwords = m
	}
}

// WithScorer selects the scoring function (default Jaccard).
func WithScorer(s Scorer) Option {
	return func(c *config) {
		if s != nil {
			c.scorer = s
		}
	}
}

type doc struct {
	Document
	tokens   map[string]struct{}
	lenRunes int
}

// Index ranks documents against a query.
type Index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Blank documents, documents below the
// minimum length, and documents with no tokens are skipped.
func NewIndex(docs []Document, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		t := strings.TrimSpace(normalizeWhitespace(d.Text))
		if t == "" {
			continue
		}
		n := utf8.RuneCountInString(t)
		if cfg.minRunes > 0 && n < cfg.minRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		d.Text = t
		out = append(out, doc{Document: d, tokens: toks, lenRunes: n})
	}
	return &Index{cfg: cfg, docs: out}
}

// Len returns the number of indexed documents.
func (i *Index) Len() int { return len(i.docs) }

// TopK returns up to k documents whose score is >= threshold, best first.
// Ties prefer shorter documents, then lexical order.
func (i *Index) TopK(q string, k int, threshold float64) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		d     *doc
		score float64
	}
	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for n := range i.docs {
		d := &i.docs[n]
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		score := i.cfg.scorer(over, qLen, len(d.tokens))
		if score <= 0 || score < threshold {
			continue
		}
		buf = append(buf, scored{d: d, score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].d.lenRunes != buf[b].d.lenRunes {
			return buf[a].d.lenRunes < buf[b].d.lenRunes
		}
		return buf[a].d.Text < buf[b].d.Text
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Doc: buf[n].d.Document, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

var defaultStopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "can", "do", "does", "for",
		"from", "how", "i", "in", "is", "it", "me", "my", "of", "on", "or", "our",
		"the", "to", "we", "what", "when", "where", "which", "who", "with", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Tokens returns the distinct lower-cased word tokens of s, minus the
// built-in stop words.
func Tokens(s string) []string {
	set := tokenize(s, defaultStopwords)
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
