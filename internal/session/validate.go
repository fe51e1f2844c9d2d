package session

import (
	"fmt"
	"unicode"
)

// ValidateIdentity checks that an identity string is usable for connection
// registration and storage scoping. The identity is opaque (the backend
// treats it as the authenticated user's address), so only basic sanity is
// enforced here.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity must not be empty")
	}
	if len(identity) > 254 {
		return fmt.Errorf("identity too long (%d chars, max 254)", len(identity))
	}
	for _, r := range identity {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("identity %q contains whitespace or control characters", identity)
		}
	}
	return nil
}
