// Package room derives the identity of a one-to-one conversation.
package room

import "strings"

const sep = "_"

// ID returns the room identity for users a and b. The result does not depend
// on argument order. a == b is not a valid room and is rejected upstream.
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + sep + b
}

// Participants splits id at its first separator. User ids containing "_"
// make this ambiguous; the store holds the authoritative pair.
func Participants(id string) (a, b string, ok bool) {
	a, b, ok = strings.Cut(id, sep)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
