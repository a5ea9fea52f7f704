package assign

import (
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Customer name resolution: map a job's free-text customer string onto one
// of the canonical names present in the mileage table, or fail resolution.

var (
	leadingNumRe    = regexp.MustCompile(`^\d+\s*[-–—]?\s*`)
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// NormalizeName reduces a customer name to a comparable form: leading
// numeric/separator prefix removed, parenthetical segments removed,
// punctuation removed, case-folded, whitespace collapsed.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = leadingNumRe.ReplaceAllString(s, "")
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Resolver fuzzy-matches normalized job customer names against the
// canonical customer set. Resolution is a pure function of the inputs:
// (raw name, canonical set, overrides, metric, threshold) always yields
// the same answer. The scoring metric is named configuration because
// different metrics shift matches near the threshold.
type Resolver struct {
	canonical  []string          // canonical names, input order
	normalized []string          // NormalizeName of each canonical
	overrides  map[string]string // normalized raw -> canonical
	threshold  float64
	metric     strutil.StringMetric
}

// NewResolver builds a resolver over the canonical customer set.
// metricName is one of levenshtein, jaro-winkler, sorensen-dice; anything
// else falls back to levenshtein. Override values must be canonical names
// as they appear in the mileage table.
func NewResolver(canonical []string, overrides map[string]string, threshold float64, metricName string) *Resolver {
	seen := map[string]struct{}{}
	r := &Resolver{
		overrides: map[string]string{},
		threshold: threshold,
		metric:    newMetric(metricName),
	}
	for _, c := range canonical {
		if _, dup := seen[c]; dup || strings.TrimSpace(c) == "" {
			continue
		}
		seen[c] = struct{}{}
		r.canonical = append(r.canonical, c)
		r.normalized = append(r.normalized, NormalizeName(c))
	}
	for raw, canon := range overrides {
		r.overrides[NormalizeName(raw)] = canon
	}
	return r
}

func newMetric(name string) strutil.StringMetric {
	switch name {
	case "jaro-winkler":
		return metrics.NewJaroWinkler()
	case "sorensen-dice":
		return metrics.NewSorensenDice()
	default:
		return metrics.NewLevenshtein()
	}
}

// Resolve maps raw onto a canonical customer name. The override table wins
// outright when it has an entry for the normalized raw name, even if fuzzy
// scoring would prefer another candidate. Otherwise the single best-scoring
// candidate is accepted iff its score meets the threshold. ok is false when
// resolution fails.
func (r *Resolver) Resolve(raw string) (canonical string, score float64, ok bool) {
	norm := NormalizeName(raw)
	if norm == "" {
		return "", 0, false
	}
	if canon, hit := r.overrides[norm]; hit {
		return canon, 1, true
	}
	bestIdx := -1
	best := 0.0
	for i, cand := range r.normalized {
		s := strutil.Similarity(norm, cand, r.metric)
		if s > best {
			best = s
			bestIdx = i
		}
	}
	if bestIdx < 0 || best < r.threshold {
		return "", best, false
	}
	return r.canonical[bestIdx], best, true
}
