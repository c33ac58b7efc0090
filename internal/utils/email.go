package utils

import "net/mail"

// ValidEmail accepts a bare address such as "ana@example.com". Display
// names and angle brackets are rejected.
func ValidEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
