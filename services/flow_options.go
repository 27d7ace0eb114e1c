package services

// Flow screen names used by the property search Flow
const (
	FlowScreenSearch  = "SEARCH"
	FlowScreenResults = "RESULTS"
)

type flowOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func optionList(values ...string) []flowOption {
	out := make([]flowOption, 0, len(values))
	for _, v := range values {
		out = append(out, flowOption{ID: v, Title: v})
	}
	return out
}

// DefaultFlowOptions returns the dropdown data the search Flow opens with.
// A fresh map is returned on every call so callers may add overrides.
func DefaultFlowOptions() map[string]interface{} {
	return map[string]interface{}{
		"cities": optionList("Harare", "Bulawayo", "Mutare", "Gweru", "Masvingo"),
		"suburbs": optionList(
			"Avondale", "Belgravia", "Belvedere", "Borrowdale", "Avenues",
			"Greendale", "Highlands", "Mabelreign", "Marlborough", "Milton Park",
			"Mount Pleasant", "Waterfalls",
		),
		"categories":     optionList("Residential", "Student accommodation", "Commercial"),
		"property_types": optionList("Apartment", "House", "Cottage", "Room", "Townhouse"),
		"bedrooms":       optionList("1", "2", "3", "4", "5+"),
	}
}
