package models

import "time"

// CredentialSafetyMargin is how long before expiry an access token stops being
// considered usable.
const CredentialSafetyMargin = 600 * time.Second

// Credential is the OAuth token state for the remote tracking service. It is
// persisted through the config file, never encoded on its own.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Usable reports whether the access token can be used as-is at the given time.
func (c Credential) Usable(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.After(now.Add(CredentialSafetyMargin))
}
