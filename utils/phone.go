package utils

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips everything except digits
func DigitsOnly(value string) string {
	return nonDigits.ReplaceAllString(value, "")
}

// CanonicalPhone converts a phone number to the single form used for storage and lookups.
// International numbers (+263..., 00263..., 263...) keep their country code.
// A local number with one leading trunk zero gets defaultCountryCode instead of the zero.
func CanonicalPhone(phoneNumber, defaultCountryCode string) string {
	trimmed := strings.TrimSpace(phoneNumber)
	digits := DigitsOnly(trimmed)
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "+") {
		return digits
	}
	if strings.HasPrefix(digits, "00") {
		return strings.TrimPrefix(digits, "00")
	}
	if strings.HasPrefix(digits, "0") && defaultCountryCode != "" {
		return defaultCountryCode + strings.TrimLeft(digits, "0")
	}
	return digits
}

// DisplayPhone formats a canonical number for humans
func DisplayPhone(phoneNumber string) string {
	digits := DigitsOnly(phoneNumber)
	if digits == "" {
		return phoneNumber
	}
	return "+" + digits
}

// WhatsAppLink returns a click-to-chat link for a number
func WhatsAppLink(phoneNumber string) string {
	digits := DigitsOnly(phoneNumber)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits
}
