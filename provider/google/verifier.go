// Package google accepts Google-issued ID tokens as an additional member of
// the access-token verifier chain.
package google

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"

	"github.com/MrEthical07/authcore/jwt"
)

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Verifier validates Google ID tokens for one OAuth client id.
type Verifier struct {
	clientID string
	validate validateFunc
}

var _ jwt.Introspector = (*Verifier)(nil)

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID, validate: idtoken.Validate}
}

// Introspect validates token's signature, audience, and expiry and requires
// a verified email.
func (v *Verifier) Introspect(ctx context.Context, token string) (*jwt.ExternalIdentity, error) {
	if v.clientID == "" {
		return nil, errors.New("google: client id not configured")
	}
	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, err
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	if email == "" || !verified {
		return nil, errors.New("google: email missing or unverified")
	}

	return &jwt.ExternalIdentity{
		Subject: payload.Subject,
		Email:   email,
		Issuer:  payload.Issuer,
	}, nil
}
