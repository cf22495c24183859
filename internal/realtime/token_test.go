package realtime

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	grant, err := issuer.Issue(7)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Contains(t, grant.Channels, UserConversationsChannel(7))
	assert.Contains(t, grant.Channels, PresenceChannel)

	claims, err := issuer.Verify(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, grant.Channels, claims.Channels)
}

func TestIssueReusesCachedGrant(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	first, err := issuer.Issue(7)
	require.NoError(t, err)
	second, err := issuer.Issue(7)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
}

func TestIssueDoesNotReuseNearExpiry(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), 10*time.Second)

	first, err := issuer.Issue(7)
	require.NoError(t, err)
	second, err := issuer.Issue(7)
	require.NoError(t, err)

	// ttl is below the reissue margin, so the cache never serves.
	assert.NotEqual(t, first.Token, second.Token)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	grant, err := issuer.Issue(7)
	require.NoError(t, err)

	parts := strings.Split(grant.Token, "|")
	require.Len(t, parts, 2)
	tampered := parts[0] + "|" + strings.Repeat("A", len(parts[1]))

	_, err = issuer.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	other := NewTokenIssuer([]byte("different"), time.Hour)

	grant, err := issuer.Issue(7)
	require.NoError(t, err)

	_, err = other.Verify(grant.Token)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	for _, token := range []string{"", "no-separator", "a|b|c", "!!!|!!!"} {
		_, err := issuer.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidGrant, "token %q", token)
	}
}

func TestVerifyRejectsExpiredGrant(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), -time.Minute)

	grant, err := issuer.Issue(7)
	require.NoError(t, err)

	_, err = issuer.Verify(grant.Token)
	assert.ErrorIs(t, err, ErrGrantExpired)
}
