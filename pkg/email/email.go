// Package email holds small helpers for email addresses used as identifiers.
package email

import (
	"strings"
	"unicode"

	"github.com/asaskevich/govalidator"
)

// Normalize trims and lower-cases an address so lookups are case-insensitive.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValid reports whether address is a syntactically valid email address.
func IsValid(address string) bool {
	return address != "" && govalidator.IsEmail(address)
}

// DisplayName derives a human name from the local part of an address,
// e.g. "mario.rossi@example.com" becomes "Mario Rossi".
func DisplayName(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "User"
	}

	names := make([]string, 0, 2)
	names = append(names, capitalize(parts[0]))
	if len(parts) > 1 {
		names = append(names, capitalize(parts[len(parts)-1]))
	}
	return strings.Join(names, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
