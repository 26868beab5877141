package registry

import (
	"fmt"

	"github.com/lawgenie/hscompass/internal/model"
)

func chapters(first, last int) []string {
	var out []string
	for ch := first; ch <= last; ch++ {
		out = append(out, fmt.Sprintf("%02d", ch))
	}
	return out
}

// defaultSources is the starting catalog of government data sources.
// Every source begins at success rate 0.0 and earns its rank through
// recorded outcomes.
func defaultSources() []model.Source {
	foodChapters := chapters(9, 24)
	agriChapters := chapters(1, 24)
	chemChapters := chapters(28, 38)

	return []model.Source{
		{
			Name:      "fda_food_enforcement",
			Agency:    "FDA",
			URL:       "https://api.fda.gov/food/enforcement.json",
			Method:    "GET",
			Params:    map[string]string{"limit": "10"},
			Category:  "food",
			Prefixes:  foodChapters,
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "fda_drug_event",
			Agency:    "FDA",
			URL:       "https://api.fda.gov/drug/event.json",
			Method:    "GET",
			Params:    map[string]string{"limit": "10"},
			Category:  "drug",
			Prefixes:  []string{"30", "31", "32"},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "fda_device_event",
			Agency:    "FDA",
			URL:       "https://api.fda.gov/device/event.json",
			Method:    "GET",
			Params:    map[string]string{"limit": "10"},
			Category:  "device",
			Prefixes:  []string{"84", "85", "90", "91", "92", "93", "94", "95", "96"},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "fda_cosmetic_event",
			Agency:    "FDA",
			URL:       "https://api.fda.gov/cosmetic/event.json",
			Method:    "GET",
			Params:    map[string]string{"limit": "10"},
			Category:  "cosmetic",
			Prefixes:  []string{"33", "34"},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:        "usda_fooddata_central",
			Agency:      "USDA",
			URL:         "https://api.nal.usda.gov/fdc/v1/foods/search",
			Method:      "GET",
			Params:      map[string]string{"pageSize": "10", "pageNumber": "1"},
			Category:    "agricultural",
			Prefixes:    agriChapters,
			RequiresKey: true,
			RateLimit:   "1000/day",
			Active:      true,
		},
		{
			Name:      "epa_comptox_chemicals",
			Agency:    "EPA",
			URL:       "https://comptox.epa.gov/dashboard/api/search",
			Method:    "GET",
			Params:    map[string]string{"limit": "10"},
			Category:  "chemical",
			Prefixes:  chemChapters,
			RateLimit: "1000/hour",
			Fallback:  "epa_srs_chemname",
			Active:    true,
		},
		{
			Name:      "epa_srs_chemname",
			Agency:    "EPA",
			URL:       "https://cdxapps.epa.gov/ords/srs/srs_api/chemname/",
			Method:    "GET",
			Category:  "chemical",
			Prefixes:  chemChapters,
			RateLimit: "1000/hour",
			Active:    true,
		},
		{
			Name:      "fcc_eas_equipment_authorization",
			Agency:    "FCC",
			URL:       "https://opendata.fcc.gov/api/views/",
			Method:    "GET",
			Params:    map[string]string{"limit": "10", "format": "json"},
			Category:  "electronics",
			Prefixes:  []string{"84", "85"},
			RateLimit: "1000/hour",
			Active:    true,
		},
		{
			Name:      "fcc_device_authorization",
			Agency:    "FCC",
			URL:       "https://api.fcc.gov/device/authorization/grants",
			Method:    "GET",
			Params:    map[string]string{"limit": "10", "format": "json"},
			Category:  "electronics",
			Prefixes:  []string{"84", "85"},
			RateLimit: "1000/hour",
			Active:    true,
		},
		{
			Name:      "cpsc_saferproducts_recalls",
			Agency:    "CPSC",
			URL:       "https://www.cpsc.gov/SaferProducts/",
			Method:    "GET",
			Params:    map[string]string{"format": "json"},
			Category:  "consumer",
			Prefixes:  []string{"84", "85", "94", "95", "96"},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "cbp_public_data_portal",
			Agency:    "CBP",
			URL:       "https://www.cbp.gov/newsroom/stats/cbp-public-data-portal",
			Method:    "GET",
			Category:  "trade",
			Prefixes:  []string{model.WildcardPrefix},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:        "cbp_ace_portal_api",
			Agency:      "CBP",
			URL:         "https://api.cbp.gov/ace/",
			Method:      "GET",
			Params:      map[string]string{"limit": "10", "format": "json"},
			Category:    "trade",
			Prefixes:    []string{model.WildcardPrefix},
			RequiresKey: true,
			RateLimit:   "1000/day",
			Active:      true,
		},
		{
			Name:        "commerce_trade_data_api",
			Agency:      "Commerce",
			URL:         "https://api.census.gov/data/timeseries/intltrade/",
			Method:      "GET",
			Params:      map[string]string{"limit": "10", "format": "json"},
			Category:    "trade",
			Prefixes:    []string{model.WildcardPrefix},
			RequiresKey: true,
			RateLimit:   "1000/day",
			Active:      true,
		},
		{
			Name:      "commerce_steel_import_monitor",
			Agency:    "Commerce",
			URL:       "https://www.trade.gov/steel-import-monitoring-analysis-system-sima",
			Method:    "GET",
			Params:    map[string]string{"limit": "10", "format": "json"},
			Category:  "trade",
			Prefixes:  []string{"72", "73"},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "ftc_business_guidance",
			Agency:    "FTC",
			URL:       "https://www.ftc.gov/business-guidance/industry/clothing-textiles",
			Method:    "GET",
			Category:  "consumer",
			Prefixes:  []string{model.WildcardPrefix},
			RateLimit: "1000/day",
			Active:    true,
		},
		{
			Name:      "commerce_aluminum_import_monitor",
			Agency:    "Commerce",
			URL:       "https://www.trade.gov/aluminum-import-monitor",
			Method:    "GET",
			Params:    map[string]string{"limit": "10", "format": "json"},
			Category:  "trade",
			Prefixes:  []string{"76"},
			RateLimit: "1000/day",
			Active:    true,
		},
	}
}

// defaultAgencies is the starting catalog of regulatory agencies and
// the HS chapters each one covers.
func defaultAgencies() []model.Agency {
	agriChapters := chapters(1, 24)
	chemChapters := chapters(28, 38)
	medChapters := chapters(90, 96)
	wildcard := []string{model.WildcardPrefix}

	fdaChapters := append(chapters(9, 24), "30", "31", "32", "33", "34",
		"84", "85", "90", "91", "92", "93", "94", "95", "96")

	return []model.Agency{
		{
			ID:          "fda",
			Name:        "Food and Drug Administration",
			ShortName:   "FDA",
			Description: "Food safety standards, labeling rules, drugs, medical devices, cosmetics",
			Website:     "https://www.fda.gov",
			Categories:  []string{"food", "drug", "device", "cosmetic"},
			Prefixes:    fdaChapters,
			Priority:    10,
			Active:      true,
		},
		{
			ID:          "usda",
			Name:        "U.S. Department of Agriculture",
			ShortName:   "USDA",
			Description: "Agricultural import requirements and quarantine rules",
			Website:     "https://www.usda.gov",
			Categories:  []string{"agricultural", "food"},
			Prefixes:    agriChapters,
			Priority:    9,
			Active:      true,
		},
		{
			ID:          "cbp",
			Name:        "Customs and Border Protection",
			ShortName:   "CBP",
			Description: "Import requirements and tariff rates",
			Website:     "https://www.cbp.gov",
			Categories:  []string{"trade", "customs"},
			Prefixes:    wildcard,
			Priority:    9,
			Active:      true,
		},
		{
			ID:          "fsis",
			Name:        "Food Safety and Inspection Service",
			ShortName:   "FSIS",
			Description: "Meat and poultry inspection requirements",
			Website:     "https://www.fsis.usda.gov",
			Categories:  []string{"agricultural", "meat"},
			Prefixes:    []string{"01", "02", "03", "04", "16"},
			Priority:    8,
			Active:      true,
		},
		{
			ID:          "epa",
			Name:        "Environmental Protection Agency",
			ShortName:   "EPA",
			Description: "Chemical registration requirements and environmental regulation",
			Website:     "https://www.epa.gov",
			Categories:  []string{"chemical", "environmental"},
			Prefixes:    chemChapters,
			Priority:    8,
			Active:      true,
		},
		{
			ID:          "fcc",
			Name:        "Federal Communications Commission",
			ShortName:   "FCC",
			Description: "Radio equipment authorization requirements",
			Website:     "https://www.fcc.gov",
			Categories:  []string{"electronics", "telecommunications"},
			Prefixes:    []string{"84", "85"},
			Priority:    8,
			Active:      true,
		},
		{
			ID:          "aphis",
			Name:        "Animal and Plant Health Inspection Service",
			ShortName:   "APHIS",
			Description: "Animal and plant quarantine requirements",
			Website:     "https://www.aphis.usda.gov",
			Categories:  []string{"agricultural", "quarantine"},
			Prefixes:    agriChapters,
			Priority:    7,
			Active:      true,
		},
		{
			ID:          "cpsc",
			Name:        "Consumer Product Safety Commission",
			ShortName:   "CPSC",
			Description: "Consumer product safety standards",
			Website:     "https://www.cpsc.gov",
			Categories:  []string{"consumer", "safety"},
			Prefixes:    []string{"84", "85", "94", "95", "96"},
			Priority:    7,
			Active:      true,
		},
		{
			ID:          "cdc",
			Name:        "Centers for Disease Control and Prevention",
			ShortName:   "CDC",
			Description: "Infection control standards",
			Website:     "https://www.cdc.gov",
			Categories:  []string{"medical", "health"},
			Prefixes:    medChapters,
			Priority:    7,
			Active:      true,
		},
		{
			ID:          "osha",
			Name:        "Occupational Safety and Health Administration",
			ShortName:   "OSHA",
			Description: "Workplace safety standards",
			Website:     "https://www.osha.gov",
			Categories:  []string{"chemical", "safety"},
			Prefixes:    chemChapters,
			Priority:    6,
			Active:      true,
		},
		{
			ID:          "ntia",
			Name:        "National Telecommunications and Information Administration",
			ShortName:   "NTIA",
			Description: "Telecommunications equipment regulation",
			Website:     "https://www.ntia.gov",
			Categories:  []string{"electronics", "telecommunications"},
			Prefixes:    []string{"84", "85"},
			Priority:    6,
			Active:      true,
		},
		{
			ID:          "nih",
			Name:        "National Institutes of Health",
			ShortName:   "NIH",
			Description: "Research medical device standards",
			Website:     "https://www.nih.gov",
			Categories:  []string{"medical", "research"},
			Prefixes:    medChapters,
			Priority:    6,
			Active:      true,
		},
		{
			ID:          "ftc",
			Name:        "Federal Trade Commission",
			ShortName:   "FTC",
			Description: "Product labeling standards",
			Website:     "https://www.ftc.gov",
			Categories:  []string{"consumer", "labeling"},
			Prefixes:    wildcard,
			Priority:    6,
			Active:      true,
		},
		{
			ID:          "cms",
			Name:        "Centers for Medicare & Medicaid Services",
			ShortName:   "CMS",
			Description: "Medical device reimbursement standards",
			Website:     "https://www.cms.gov",
			Categories:  []string{"medical", "insurance"},
			Prefixes:    medChapters,
			Priority:    5,
			Active:      true,
		},
		{
			ID:          "commerce",
			Name:        "Department of Commerce",
			ShortName:   "Commerce",
			Description: "Trade statistics and trade policy",
			Website:     "https://www.commerce.gov",
			Categories:  []string{"trade", "statistics"},
			Prefixes:    wildcard,
			Priority:    5,
			Active:      true,
		},
	}
}
