// Package auth issues and verifies the signed tokens carrying a caller's
// identity and permissions.
package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/osa030/karabox/internal/domain/user"
)

// ErrInvalidToken is returned when a token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims.
type Claims struct {
	UserID      string `json:"uid"`
	Name        string `json:"name,omitempty"`
	IsSuperuser bool   `json:"su,omitempty"`
	Playlist    string `json:"pl,omitempty"`
	Library     string `json:"lib,omitempty"`
	IsPlayer    bool   `json:"player,omitempty"`
	jwt.RegisteredClaims
}

// User returns the identity carried by the claims.
func (c Claims) User() user.User {
	return user.User{
		ID:            c.UserID,
		Name:          c.Name,
		IsSuperuser:   c.IsSuperuser,
		PlaylistLevel: user.ParseLevel(c.Playlist),
		LibraryLevel:  user.ParseLevel(c.Library),
		IsPlayer:      c.IsPlayer,
	}
}

// Authority signs and verifies HS256 tokens with a shared secret.
type Authority struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthority creates an authority. Issued tokens expire after ttl.
func NewAuthority(secret, issuer string, ttl time.Duration) *Authority {
	return &Authority{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for u.
func (a *Authority) Issue(u user.User) (string, error) {
	if u.ID == "" {
		return "", errors.New("user id is required")
	}
	now := a.now()
	claims := &Claims{
		UserID:      u.ID,
		Name:        u.Name,
		IsSuperuser: u.IsSuperuser,
		Playlist:    string(u.PlaylistLevel),
		Library:     string(u.LibraryLevel),
		IsPlayer:    u.IsPlayer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry of raw and returns its user.
func (a *Authority) Verify(raw string) (user.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return user.User{}, errors.Mark(errors.Wrap(err, "verify token"), ErrInvalidToken)
	}
	if !token.Valid {
		return user.User{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return user.User{}, errors.Wrap(ErrInvalidToken, "token has no user id")
	}
	return claims.User(), nil
}
