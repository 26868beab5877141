package model

import "time"

// Agency is a governing body that imposes requirements on products
// within certain taxonomy-code prefixes.
type Agency struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ShortName   string    `json:"short_name"`
	Description string    `json:"description,omitempty"`
	Website     string    `json:"website,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Prefixes    []string  `json:"prefixes"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasCategory reports whether the agency carries the given category tag.
func (a Agency) HasCategory(tag string) bool {
	for _, c := range a.Categories {
		if c == tag {
			return true
		}
	}
	return false
}

// AgencyMapping links one taxonomy-code prefix to one agency. The
// mapping's own priority is authoritative for ranking within that
// prefix and may differ from the agency's global priority.
type AgencyMapping struct {
	Prefix   string `json:"prefix"`
	AgencyID string `json:"agency_id"`
	Priority int    `json:"priority"`
}

// RankedAgency is an agency joined with the mapping priority that
// selected it for a particular taxonomy code.
type RankedAgency struct {
	Agency
	MappingPriority int `json:"mapping_priority"`
}
