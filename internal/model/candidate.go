package model

// Hierarchy holds the ancestor descriptions assembled for a leaf
// taxonomy code.
type Hierarchy struct {
	Heading        string `json:"heading"`
	Subheading     string `json:"subheading"`
	Tertiary       string `json:"tertiary"`
	Combined       string `json:"combined"`
	HeadingCode    string `json:"heading_code"`
	SubheadingCode string `json:"subheading_code"`
	TertiaryCode   string `json:"tertiary_code"`
}

// Candidate is one ranked classification proposal. Candidates are
// ephemeral: they exist only within a single classification call.
type Candidate struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Score       float64   `json:"score"`
	Category    string    `json:"category"`
	DutyRate    float64   `json:"duty_rate"`
	Hierarchy   Hierarchy `json:"hierarchy"`
	Reasoning   string    `json:"reasoning,omitempty"`
}

// TariffEstimate breaks a candidate's duty figure into its base rate
// and the reciprocal surcharge in force.
type TariffEstimate struct {
	BaseRate       float64 `json:"base_rate"`
	ReciprocalRate float64 `json:"reciprocal_rate"`
	TotalRate      float64 `json:"total_rate"`
	Explanation    string  `json:"explanation"`
}
