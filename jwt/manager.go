package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretLength is the shortest accepted HS256 signing secret in bytes.
	MinSecretLength = 32
	// DefaultAccessTTL is the access-token lifetime used when none is configured.
	DefaultAccessTTL = 24 * time.Hour
	// MaxLeeway caps clock-skew tolerance on exp checks.
	MaxLeeway = 2 * time.Minute
)

// ErrConfiguration reports an unusable signing configuration. It is fatal and
// must not be retried.
var ErrConfiguration = errors.New("jwt configuration invalid")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	Leeway    time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager defines a public type used by authcore APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Claims is the input to Mint.
type Claims struct {
	Subject   string
	Email     string
	Tier      string
	Role      string
	SessionID string
}

// AccessClaims is the signed claim layout of a self-issued access token.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"`
	Role  string `json:"role,omitempty"`
	SID   string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager returns an error wrapping ErrConfiguration when the secret is
// missing or shorter than MinSecretLength, the TTL is not positive, issuer or
// audience is empty, or the leeway is outside [0, MaxLeeway].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrConfiguration)
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", ErrConfiguration, MinSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access TTL must be > 0", ErrConfiguration)
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrConfiguration)
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("%w: audience is required", ErrConfiguration)
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, fmt.Errorf("%w: leeway must be within [0, %s]", ErrConfiguration, MaxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Mint describes the mint operation and its observable behavior.
//
// Mint signs an HS256 token whose expiry is now + AccessTTL. It only fails
// when signing fails.
func (m *Manager) Mint(c Claims) (string, error) {
	now := m.config.Now()

	claims := AccessClaims{
		Email: c.Email,
		Tier:  c.Tier,
		Role:  c.Role,
		SID:   c.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse describes the parse operation and its observable behavior.
//
// Parse rejects tokens with a foreign algorithm, bad signature, wrong issuer
// or audience, missing subject, or an exp that is not in the future.
func (m *Manager) Parse(tokenStr string) (*Payload, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject missing")
	}

	payload := &Payload{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Tier:      claims.Tier,
		Role:      claims.Role,
		SessionID: claims.SID,
		Issuer:    claims.Issuer,
		Source:    SourceSelf,
	}
	if len(claims.Audience) > 0 {
		payload.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Time
	}

	return payload, nil
}
