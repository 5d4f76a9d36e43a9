package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

var ErrInvalidToken = errors.New("invalid session token")

// Manager signs and parses session tokens. A token carries the caller's
// identity claim; for OAuth sign-ins with deferred account creation the token
// is the only place the identity exists.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type sessionClaims struct {
	Email            string `json:"email"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	IdentityProvider string `json:"idp,omitempty"`
	jwt.RegisteredClaims
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a session token for the given identity claim. Persisted
// identities carry the account id as the subject; token-only identities have
// an empty subject.
func (m *Manager) Issue(claim entity.IdentityClaim) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, errors.New("session jwt secret is empty")
	}
	if strings.TrimSpace(claim.Email) == "" {
		return "", time.Time{}, errors.New("identity claim email is empty")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)

	subject := ""
	if claim.Persisted && claim.AccountID != nil {
		subject = strconv.FormatUint(*claim.AccountID, 10)
	}

	claims := sessionClaims{
		Email:            strings.TrimSpace(claim.Email),
		FirstName:        strings.TrimSpace(claim.FirstName),
		LastName:         strings.TrimSpace(claim.LastName),
		IdentityProvider: strings.TrimSpace(claim.Provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Parse validates a session token and reconstructs the identity claim.
func (m *Manager) Parse(raw string) (entity.IdentityClaim, error) {
	if strings.TrimSpace(raw) == "" {
		return entity.IdentityClaim{}, ErrInvalidToken
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || parsed == nil || !parsed.Valid {
		return entity.IdentityClaim{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Email) == "" {
		return entity.IdentityClaim{}, ErrInvalidToken
	}

	claim := entity.IdentityClaim{
		Email:     strings.TrimSpace(claims.Email),
		FirstName: strings.TrimSpace(claims.FirstName),
		LastName:  strings.TrimSpace(claims.LastName),
		Provider:  strings.TrimSpace(claims.IdentityProvider),
	}

	if subject := strings.TrimSpace(claims.Subject); subject != "" {
		accountID, parseErr := strconv.ParseUint(subject, 10, 64)
		if parseErr != nil || accountID == 0 {
			return entity.IdentityClaim{}, ErrInvalidToken
		}
		claim.AccountID = &accountID
		claim.Persisted = true
	}

	return claim, nil
}
