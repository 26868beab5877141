package classifier

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/lawgenie/hscompass/internal/model"
)

//go:embed data/hts.yaml
var embeddedTaxonomy []byte

// Record is one line of the tariff schedule. Codes are dotted:
// 4-digit headings, 6-digit subheadings, 8-digit tertiary lines, and
// 10-digit leaves.
type Record struct {
	Code        string  `yaml:"code"`
	Description string  `yaml:"description"`
	DutyRate    float64 `yaml:"duty_rate"`
}

// Taxonomy is the in-memory tariff schedule with prefix lookups.
type Taxonomy struct {
	records []Record
	lookup  map[string]Record
}

// LoadEmbedded parses the taxonomy dataset compiled into the binary.
func LoadEmbedded() (*Taxonomy, error) {
	return Load(embeddedTaxonomy)
}

// Load parses a YAML taxonomy dataset.
func Load(data []byte) (*Taxonomy, error) {
	var doc struct {
		Records []Record `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "classifier: parse taxonomy")
	}
	if len(doc.Records) == 0 {
		return nil, eris.New("classifier: empty taxonomy")
	}

	t := &Taxonomy{
		records: doc.Records,
		lookup:  make(map[string]Record, len(doc.Records)),
	}
	for _, r := range doc.Records {
		t.lookup[r.Code] = r
	}
	return t, nil
}

// Leaves returns the 10-digit records, in dataset order.
func (t *Taxonomy) Leaves() []Record {
	var leaves []Record
	for _, r := range t.records {
		if IsLeaf(r.Code) {
			leaves = append(leaves, r)
		}
	}
	return leaves
}

// Get returns the record for a dotted code.
func (t *Taxonomy) Get(code string) (Record, bool) {
	r, ok := t.lookup[code]
	return r, ok
}

// DutyRate returns the base duty rate for a code, or 0 when unknown.
func (t *Taxonomy) DutyRate(code string) float64 {
	if r, ok := t.lookup[code]; ok {
		return r.DutyRate
	}
	return 0
}

// IsLeaf reports whether a code is a full 10-digit tariff line.
func IsLeaf(code string) bool {
	digits := model.DigitsOf(code)
	if len(digits) != 10 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// genericDescription reports headings like "Other" that carry no
// classification signal on their own.
func genericDescription(desc string) bool {
	switch strings.ToLower(strings.TrimRight(strings.TrimSpace(desc), ":")) {
	case "other", "others":
		return true
	}
	return false
}

// leafOtherDescription is substituted for bare "Other" leaves so the
// candidate still reads as a product line.
const leafOtherDescription = "Other preparations in this category"

// Hierarchy assembles the ancestor chain for a leaf code, skipping
// generic "Other" levels, and builds the combined description used
// for matching.
func (t *Taxonomy) Hierarchy(code string) model.Hierarchy {
	digits := model.DigitsOf(code)
	h := model.Hierarchy{}

	if len(digits) >= 4 {
		h.HeadingCode = digits[:4]
		if r, ok := t.lookup[h.HeadingCode]; ok && !genericDescription(r.Description) {
			h.Heading = r.Description
		}
	}
	if len(digits) >= 6 {
		h.SubheadingCode = digits[:4] + "." + digits[4:6]
		if r, ok := t.lookup[h.SubheadingCode]; ok && !genericDescription(r.Description) {
			h.Subheading = r.Description
		}
	}
	if len(digits) >= 8 {
		h.TertiaryCode = digits[:4] + "." + digits[4:6] + "." + digits[6:8]
		if r, ok := t.lookup[h.TertiaryCode]; ok && !genericDescription(r.Description) {
			h.Tertiary = r.Description
		}
	}

	leafDesc := ""
	if r, ok := t.lookup[code]; ok {
		leafDesc = r.Description
		if genericDescription(leafDesc) {
			leafDesc = leafOtherDescription
		}
	}

	var parts []string
	for _, p := range []string{h.Heading, h.Subheading, h.Tertiary, leafDesc} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	h.Combined = strings.Join(parts, " ")
	return h
}
