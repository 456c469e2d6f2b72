package auth

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karabox/internal/domain/user"
)

const secret = "0123456789abcdef0123"

func TestAuthority_RoundTrip(t *testing.T) {
	a := NewAuthority(secret, "karabox", time.Hour)

	tests := []struct {
		name string
		user user.User
	}{
		{name: "playlist user", user: user.User{ID: "u1", Name: "Alice", PlaylistLevel: user.LevelUser}},
		{name: "manager", user: user.User{ID: "u2", PlaylistLevel: user.LevelManager, LibraryLevel: user.LevelManager}},
		{name: "superuser", user: user.User{ID: "root", IsSuperuser: true}},
		{name: "player", user: user.User{ID: "device", IsPlayer: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := a.Issue(tt.user)
			require.NoError(t, err)
			got, err := a.Verify(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.user, got)
		})
	}
}

func TestAuthority_Rejects(t *testing.T) {
	a := NewAuthority(secret, "karabox", time.Hour)
	u := user.User{ID: "u1", PlaylistLevel: user.LevelUser}

	expired := NewAuthority(secret, "karabox", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue(u)
	require.NoError(t, err)

	otherSecret, err := NewAuthority("another-secret-value", "karabox", time.Hour).Issue(u)
	require.NoError(t, err)

	otherIssuer, err := NewAuthority(secret, "elsewhere", time.Hour).Issue(u)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expiredToken},
		{name: "wrong secret", token: otherSecret},
		{name: "wrong issuer", token: otherIssuer},
		{name: "unsigned", token: none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestAuthority_IssueRequiresID(t *testing.T) {
	_, err := NewAuthority(secret, "karabox", time.Hour).Issue(user.User{})
	assert.Error(t, err)
}
