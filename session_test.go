package identity_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("test-signing-key")

func testSessionUser() *identity.User {
	return &identity.User{
		ID:             uuid.New(),
		Email:          "pat@example.com",
		FullName:       "Pat Example",
		EmailConfirmed: true,
		IsApproved:     true,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	issuer := identity.NewSessionIssuer(signingKey,
		identity.WithSessionIssuer("identity-test"),
		identity.WithSessionAudience("api"),
	)

	user := testSessionUser()
	signed, err := issuer.IssueSession(user, []identity.RoleName{identity.RoleUser, identity.RoleManager})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	session, err := issuer.SessionFromToken(signed)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), session.GetUserID())
	assert.Equal(t, user.Email, session.GetEmail())
	assert.Equal(t, "identity-test", session.GetIssuer())
	assert.Equal(t, []string{"api"}, session.GetAudience())
	assert.True(t, session.HasRole(identity.RoleManager))
	assert.True(t, session.HasAnyRole(identity.AdminRoles...))
	assert.False(t, session.HasRole(identity.RoleAdmin))

	parsed, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, parsed)
}

func TestSessionExpired(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-48 * time.Hour) }
	issuer := identity.NewSessionIssuer(signingKey,
		identity.WithSessionTTL(time.Hour),
		identity.WithSessionClock(past),
	)

	signed, err := issuer.IssueSession(testSessionUser(), nil)
	require.NoError(t, err)

	_, err = issuer.SessionFromToken(signed)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeSessionExpired))
}

func TestSessionWrongKey(t *testing.T) {
	issuer := identity.NewSessionIssuer(signingKey)
	other := identity.NewSessionIssuer([]byte("a-different-key"))

	signed, err := issuer.IssueSession(testSessionUser(), nil)
	require.NoError(t, err)

	_, err = other.SessionFromToken(signed)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeSessionInvalid))
}

func TestSessionWrongIssuer(t *testing.T) {
	issuer := identity.NewSessionIssuer(signingKey, identity.WithSessionIssuer("service-a"))
	verifier := identity.NewSessionIssuer(signingKey, identity.WithSessionIssuer("service-b"))

	signed, err := issuer.IssueSession(testSessionUser(), nil)
	require.NoError(t, err)

	_, err = verifier.SessionFromToken(signed)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeSessionInvalid))
}

func TestSessionGarbageToken(t *testing.T) {
	issuer := identity.NewSessionIssuer(signingKey)

	_, err := issuer.SessionFromToken("not.a.jwt")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.TextCodeSessionInvalid))
}

func TestSessionUnknownRolesDropped(t *testing.T) {
	issuer := identity.NewSessionIssuer(signingKey)

	signed, err := issuer.IssueSession(testSessionUser(), []identity.RoleName{identity.RoleUser})
	require.NoError(t, err)

	session, err := issuer.SessionFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, []identity.RoleName{identity.RoleUser}, session.GetRoles())
}
