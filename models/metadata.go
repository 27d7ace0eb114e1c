package models

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"
)

// ListingDraft accumulates answers while a user lists a property over chat
type ListingDraft struct {
	Title         string  `json:"title"`
	Suburb        string  `json:"suburb"`
	PropertyType  string  `json:"propertyType"`
	PricePerMonth float64 `json:"pricePerMonth"`
	Bedrooms      int     `json:"bedrooms"`
}

// DraftFromMetadata reads metadata.draft, returning an empty draft when absent
func DraftFromMetadata(meta datatypes.JSONMap) ListingDraft {
	var draft ListingDraft
	raw, ok := meta[MetaDraft]
	if !ok || raw == nil {
		return draft
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return draft
	}
	_ = json.Unmarshal(b, &draft)
	return draft
}

// AsMap converts the draft for storage in a JSON metadata column
func (d ListingDraft) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"title":         d.Title,
		"suburb":        d.Suburb,
		"propertyType":  d.PropertyType,
		"pricePerMonth": d.PricePerMonth,
		"bedrooms":      d.Bedrooms,
	}
}

// MetaStrings reads a list of strings, tolerating the []interface{} shape JSON decoding produces
func MetaStrings(meta datatypes.JSONMap, key string) []string {
	switch v := meta[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64:
				out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
		return out
	}
	return nil
}
