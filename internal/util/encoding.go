package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and applies NFC so that visually
// identical input compares equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// NormalizeEmail is NormalizeText plus lowercasing.
func NormalizeEmail(s string) string {
	return strings.ToLower(NormalizeText(s))
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimSpace(s))
}
