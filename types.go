package authkit

import "time"

// Credential is the access/refresh token pair for one logical session.
// The pair is always replaced as a unit, never one half at a time.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no credential is held.
func (c Credential) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Claims represents the standard claims extracted from a verified token.
type Claims struct {
	Subject   string
	TenantID  string
	Roles     []string
	Email     string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
	Extra     map[string]any
}

// StateRecord is one issued OAuth anti-forgery nonce, keyed by Nonce.
type StateRecord struct {
	Nonce     string
	Provider  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
func (r StateRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Subscription is a validated, normalized webhook subscription payload.
type Subscription struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	IsActive bool     `json:"isActive"`
}
