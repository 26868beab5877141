package classifier

import "strings"

// category groups the taxonomy chapters a product family maps to with
// the trigger keywords that detect it in free text.
type category struct {
	Name     string
	Keywords []string
	Chapters []string
	Hint     string
}

// categories are checked in order; a query can match more than one.
var categories = []category{
	{
		Name: "cosmetic",
		Keywords: []string{
			"cosmetic", "beauty", "makeup", "skincare", "skin",
			"serum", "cream", "lotion", "preparation", "facial",
		},
		Chapters: []string{"33"},
		Hint:     "beauty skincare skin care preparations chapter 33",
	},
	{
		Name: "food",
		Keywords: []string{
			"food", "edible", "snack", "beverage", "tea",
			"sauce", "soup", "prepared", "cereal", "instant",
		},
		Chapters: []string{"04", "19", "20", "21", "22"},
		Hint:     "prepared edible food preparations",
	},
}

// semanticWeights score descriptive terms that signal how close a
// tariff line's text is to consumer product language.
var semanticWeights = map[string]float64{
	"preparation": 0.20,
	"beauty":      0.15,
	"cosmetic":    0.15,
	"makeup":      0.15,
	"food":        0.15,
	"edible":      0.15,
	"dietary":     0.15,
	"skin":        0.12,
	"care":        0.12,
	"treatment":   0.12,
	"facial":      0.10,
	"topical":     0.10,
}

// detectCategories returns the categories whose trigger keywords
// appear in the normalized query.
func detectCategories(query string) []category {
	var detected []category
	for _, cat := range categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(query, kw) {
				detected = append(detected, cat)
				break
			}
		}
	}
	return detected
}

// keywordFraction is the share of a category's trigger keywords found
// in the text.
func keywordFraction(cat category, text string) float64 {
	matches := 0
	for _, kw := range cat.Keywords {
		if strings.Contains(text, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(cat.Keywords))
}

// enhanceQuery appends each detected category's name, its matched
// trigger words, and its hint phrase to the query. The enriched text
// anchors short product names to tariff vocabulary.
func enhanceQuery(query string) string {
	lower := normalize(query)
	var additions []string
	for _, cat := range categories {
		var found []string
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, kw)
			}
		}
		if len(found) == 0 {
			continue
		}
		additions = append(additions, cat.Name)
		additions = append(additions, found...)
		additions = append(additions, cat.Hint)
	}
	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}

// normalize lowercases text and collapses punctuation to spaces.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
