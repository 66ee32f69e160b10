// Package match scores free-text references against task titles.
package match

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"hound-taskchat/internal/temporal"
)

const (
	// MinOverlap is the number of shared query tokens that makes a title relevant.
	MinOverlap = 1
	// MinSimilarity makes a title relevant without any shared token.
	MinSimilarity = 0.65
	// StrongSimilarity is the floor for a unique match to skip selection.
	StrongSimilarity = 0.80
	// DefaultLimit caps Search results when limit <= 0.
	DefaultLimit = 5
)

// Score is the outcome of comparing one query with one title.
type Score struct {
	Relevant   bool
	Overlap    int
	Similarity float64
}

// Item is a searchable title.
type Item struct {
	ID    string
	Title string
}

// Candidate is a relevant Item with its score.
type Candidate struct {
	TaskID  string  `json:"taskId"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Overlap int     `json:"-"`
}

// Relevance compares query with title after Arabic normalization.
func Relevance(query, title string) Score {
	q := Tokens(query)
	c := Tokens(title)
	if len(q) == 0 || len(c) == 0 {
		return Score{}
	}

	titleSet := make(map[string]bool, len(c))
	for _, t := range c {
		titleSet[t] = true
	}
	overlap := 0
	seen := map[string]bool{}
	for _, t := range q {
		if utf8.RuneCountInString(t) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		if titleSet[t] {
			overlap++
		}
	}

	sim := TokenSetRatio(q, c)
	return Score{
		Relevant:   overlap >= MinOverlap || sim >= MinSimilarity,
		Overlap:    overlap,
		Similarity: sim,
	}
}

// Search filters items to relevant ones, ranked by overlap then similarity,
// truncated to limit. Ties keep the input order.
func Search(query string, items []Item, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []Candidate
	for _, it := range items {
		s := Relevance(query, it.Title)
		if !s.Relevant {
			continue
		}
		out = append(out, Candidate{TaskID: it.ID, Title: it.Title, Score: round3(s.Similarity), Overlap: s.Overlap})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overlap != out[j].Overlap {
			return out[i].Overlap > out[j].Overlap
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Strong reports whether candidates hold a single high-confidence match.
func Strong(candidates []Candidate) bool {
	return len(candidates) == 1 && candidates[0].Score >= StrongSimilarity
}

// Tokens splits normalized text on anything that is not a letter or digit
// and drops the definite article from longer words.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(temporal.Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		if strings.HasPrefix(f, "ال") && utf8.RuneCountInString(f) >= 5 {
			fields[i] = strings.TrimPrefix(f, "ال")
		}
	}
	return fields
}

// TokenSetRatio is an edit-distance ratio over token sets: the shared tokens
// are compared with each side's shared+rest strings and the best ratio wins.
func TokenSetRatio(a, b []string) float64 {
	as, bs := uniqueSorted(a), uniqueSorted(b)
	inB := make(map[string]bool, len(bs))
	for _, t := range bs {
		inB[t] = true
	}
	var common, onlyA, onlyB []string
	for _, t := range as {
		if inB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	inA := make(map[string]bool, len(as))
	for _, t := range as {
		inA[t] = true
	}
	for _, t := range bs {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}

	base := strings.Join(common, " ")
	left := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	right := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	if base == "" {
		return ratio(left, right)
	}
	best := ratio(base, left)
	if r := ratio(base, right); r > best {
		best = r
	}
	if r := ratio(left, right); r > best {
		best = r
	}
	return best
}

func ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
