package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail builds a displayable first/last name from an address
// local part. Notification templates fall back to this when the recipient has
// no profile name on file.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Storyteller", "Storyteller"
	}

	first := capitalize(parts[0])
	last := "Storyteller"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
