package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
)

// reciprocalRate is the flat reciprocal surcharge applied on top of
// the base duty rate, in ad valorem percent.
const reciprocalRate = 15.0

const defaultTopK = 3

// scoring weights for the three match signals.
const (
	overlapWeight  = 0.4
	keywordWeight  = 0.3
	semanticWeight = 0.3
)

// rawThreshold splits weak matches from plausible ones; plausible raw
// scores are remapped into the confidence band before scaling.
const (
	rawThreshold  = 0.25
	bandFloor     = 0.70
	bandWidth     = 0.30
	keepThreshold = 0.5
)

// Option configures a Classifier.
type Option func(*Classifier)

// WithTopK caps the number of candidates returned per query.
func WithTopK(k int) Option {
	return func(c *Classifier) {
		if k > 0 {
			c.topK = k
		}
	}
}

// Classifier ranks tariff leaf codes against free-text product
// descriptions using keyword and lexical overlap signals.
type Classifier struct {
	tax  *Taxonomy
	topK int
}

// New builds a Classifier over the given taxonomy.
func New(tax *Taxonomy, opts ...Option) *Classifier {
	c := &Classifier{tax: tax, topK: defaultTopK}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the ranked leaf candidates for a product
// description. An empty slice means no product category was detected
// or no leaf cleared the confidence threshold.
func (c *Classifier) Classify(query string) []model.Candidate {
	enhanced := enhanceQuery(query)
	normalized := normalize(enhanced)
	detected := detectCategories(normalize(query))
	if len(detected) == 0 {
		zap.L().Debug("no category detected", zap.String("query", query))
		return nil
	}

	queryWords := uniqueWords(normalized)

	var candidates []model.Candidate
	for _, cat := range detected {
		catConf := keywordFraction(cat, normalized)
		factor := bandFloor + bandWidth*catConf

		for _, leaf := range c.tax.Leaves() {
			if !inChapters(leaf.Code, cat.Chapters) {
				continue
			}
			h := c.tax.Hierarchy(leaf.Code)
			score := matchScore(queryWords, cat, h.Combined) * factor
			if score <= keepThreshold {
				continue
			}
			desc := leaf.Description
			if genericDescription(desc) {
				desc = leafOtherDescription
			}
			candidates = append(candidates, model.Candidate{
				Code:        leaf.Code,
				Description: desc,
				Score:       score,
				Category:    cat.Name,
				DutyRate:    leaf.DutyRate,
				Hierarchy:   h,
			})
		}
	}

	candidates = dedupeByCode(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > c.topK {
		candidates = candidates[:c.topK]
	}

	zap.L().Debug("classified query",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)))
	return candidates
}

// TariffEstimate combines a code's base duty rate with the reciprocal
// surcharge.
func (c *Classifier) TariffEstimate(code string) model.TariffEstimate {
	base := c.tax.DutyRate(code)
	total := base + reciprocalRate
	return model.TariffEstimate{
		BaseRate:       base,
		ReciprocalRate: reciprocalRate,
		TotalRate:      total,
		Explanation: fmt.Sprintf(
			"Base duty rate %.1f%% plus reciprocal tariff %.1f%% gives an estimated total of %.1f%% ad valorem for %s.",
			base, reciprocalRate, total, code),
	}
}

// matchScore blends word overlap, category keyword presence, and
// semantic term weights for one tariff line description, then remaps
// plausible matches into the confidence band.
func matchScore(queryWords map[string]struct{}, cat category, combined string) float64 {
	desc := normalize(combined)
	descWords := uniqueWords(desc)

	overlap := 0
	for w := range queryWords {
		if _, ok := descWords[w]; ok {
			overlap++
		}
	}
	overlapFrac := 0.0
	if len(queryWords) > 0 {
		overlapFrac = float64(overlap) / float64(len(queryWords))
	}

	semantic := 0.0
	for term, weight := range semanticWeights {
		if strings.Contains(desc, term) {
			semantic += weight
		}
	}
	semantic = math.Min(semantic, 1.0)

	raw := overlapWeight*overlapFrac +
		keywordWeight*keywordFraction(cat, desc) +
		semanticWeight*semantic
	if raw > rawThreshold {
		return math.Min(bandFloor+raw*bandWidth, 1.0)
	}
	return raw
}

// inChapters reports whether a code falls in one of the 2-digit
// chapters.
func inChapters(code string, chapters []string) bool {
	digits := model.DigitsOf(code)
	if len(digits) < 2 {
		return false
	}
	for _, ch := range chapters {
		if digits[:2] == ch {
			return true
		}
	}
	return false
}

func uniqueWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		words[w] = struct{}{}
	}
	return words
}

// dedupeByCode keeps the highest score per code, preserving first-seen
// order otherwise.
func dedupeByCode(candidates []model.Candidate) []model.Candidate {
	best := make(map[string]int, len(candidates))
	var out []model.Candidate
	for _, cand := range candidates {
		if i, ok := best[cand.Code]; ok {
			if cand.Score > out[i].Score {
				out[i] = cand
			}
			continue
		}
		best[cand.Code] = len(out)
		out = append(out, cand)
	}
	return out
}
