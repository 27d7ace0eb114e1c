package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	dollarAmount = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)
	bareAmount   = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// SearchQuery is an "area, $budget" reply parsed into its parts
type SearchQuery struct {
	Area   string
	Budget float64
}

// ParseAreaBudget reads replies such as "Borrowdale, $200".
// The area is the first whitespace or comma separated token that is not the budget.
// The budget is the first $-prefixed amount, or failing that the first bare number.
func ParseAreaBudget(text string) SearchQuery {
	var query SearchQuery
	text = strings.TrimSpace(text)
	if text == "" {
		return query
	}

	if m := dollarAmount.FindStringSubmatch(text); m != nil {
		query.Budget, _ = strconv.ParseFloat(m[1], 64)
	} else if m := bareAmount.FindString(text); m != "" {
		query.Budget, _ = strconv.ParseFloat(m, 64)
	}

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	for _, token := range tokens {
		if isAmountToken(token) {
			continue
		}
		query.Area = token
		break
	}
	return query
}

// ParseAmount extracts the first number in a reply such as "$650" or "650 per month".
// Replies without a number parse as 0.
func ParseAmount(text string) float64 {
	m := bareAmount.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseCount extracts the first whole number in a reply, 0 when absent
func ParseCount(text string) int {
	return int(ParseAmount(text))
}

func isAmountToken(token string) bool {
	token = strings.TrimPrefix(token, "$")
	if token == "" {
		return true
	}
	_, err := strconv.ParseFloat(token, 64)
	return err == nil
}
