// Package identity defines the opaque key quota tracking is scoped by.
// The key is derived from the immutable user ID, so a changed email
// never orphans usage records.
package identity

import "strings"

// Key identifies a quota-tracked account.
type Key string

// FromUserID derives a Key from a stable user identifier.
func FromUserID(userID string) Key {
	return Key(strings.TrimSpace(userID))
}

// Zero reports whether the key is absent.
func (k Key) Zero() bool {
	return strings.TrimSpace(string(k)) == ""
}

func (k Key) String() string {
	return string(k)
}
