package jwt

import "time"

// Source records which verifier accepted an access token.
type Source string

const (
	// SourceSelf marks a token minted and signed by this service.
	SourceSelf Source = "self"
	// SourceExternal marks a token accepted by the external identity provider.
	SourceExternal Source = "external"
)

// Payload is the verified content of an access token.
//
// Payloads with Source == SourceExternal carry placeholder Tier and Role and
// zero IssuedAt/ExpiresAt. Callers that need authoritative tier or role must
// re-read the profile.
type Payload struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Role      string    `json:"role,omitempty"`
	SessionID string    `json:"sid,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	Audience  string    `json:"aud,omitempty"`
	Source    Source    `json:"source"`
}

// ExternalIdentity is what an external identity provider reports for a token.
type ExternalIdentity struct {
	Subject string
	Email   string
	Issuer  string
}
