package security

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	errInvalidPhone   = "Please enter a valid 10-digit phone number (e.g., 9841234567)"
	errInvalidEmail   = "Please enter a valid email address"
	errInvalidOrderID = "Please enter a valid order ID"
)

var (
	phonePattern        = regexp.MustCompile(`^(98|97|96|01)\d{8}$`)
	phoneSeparators     = regexp.MustCompile(`[-\s+()]`)
	phoneExtractPattern = regexp.MustCompile(`(?:^|\D)((?:98|97|96|01)\d{8})(?:\D|$)`)
	emailPattern        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	shortOrderPattern   = regexp.MustCompile(`^[A-Fa-f0-9]{8}$`)
	uuidOrderPattern    = regexp.MustCompile(`(?i)^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
)

// NormalizePhone strips separators and a 977 country code. It returns "" unless the result is
// a 10-digit Nepal number starting with 98, 97, 96 or 01.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	cleaned := phoneSeparators.ReplaceAllString(phone, "")
	cleaned = strings.TrimPrefix(cleaned, "977")
	if phonePattern.MatchString(cleaned) {
		return cleaned
	}
	return ""
}

// ValidatePhone returns the normalized phone or a friendly error.
func ValidatePhone(phone string) (ok bool, normalized string, errMsg string) {
	if n := NormalizePhone(phone); n != "" {
		return true, n, ""
	}
	return false, "", errInvalidPhone
}

// ExtractPhone finds the first Nepal phone number embedded in free text.
func ExtractPhone(text string) string {
	if m := phoneExtractPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// ValidateEmail lowercases and checks an email address.
func ValidateEmail(email string) (ok bool, normalized string, errMsg string) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e != "" && emailPattern.MatchString(e) {
		return true, e, ""
	}
	return false, "", errInvalidEmail
}

// ValidateOrderID accepts an 8-character hex id (returned uppercased) or a UUID (returned
// lowercased).
func ValidateOrderID(orderID string) (ok bool, normalized string, errMsg string) {
	id := strings.TrimSpace(orderID)
	if shortOrderPattern.MatchString(id) {
		return true, strings.ToUpper(id), ""
	}
	if uuidOrderPattern.MatchString(id) {
		if u, err := uuid.Parse(id); err == nil {
			return true, u.String(), ""
		}
	}
	return false, "", errInvalidOrderID
}
