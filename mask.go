package auth

import (
	"strings"

	"github.com/goliatone/go-masker"
)

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// MaskSecret replaces a token or reset id with a fixed width mask so log
// lines never carry a usable credential or its length.
func MaskSecret(secret string) string {
	masked, err := masker.Default.String("fixed", secret)
	if err != nil || masked == secret {
		return "********"
	}
	return masked
}
