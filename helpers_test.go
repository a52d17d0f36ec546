package identity_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT NOT NULL,
    phone_number TEXT,
    password_hash TEXT NOT NULL,
    email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    is_approved BOOLEAN NOT NULL DEFAULT FALSE,
    version INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateRoles = `CREATE TABLE roles (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateUserRoles = `CREATE TABLE user_roles (
    user_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    PRIMARY KEY (user_id, role_id)
);`

	sqliteCreateAccessTokens = `CREATE TABLE access_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    purpose TEXT NOT NULL,
    digest TEXT NOT NULL UNIQUE,
    expires_at TIMESTAMP NOT NULL,
    consumed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupTestDB(t *testing.T) (identity.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, ddl := range []string{
		sqliteCreateUsers,
		sqliteCreateRoles,
		sqliteCreateUserRoles,
		sqliteCreateAccessTokens,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := identity.NewRepositoryManager(bunDB)
	require.NoError(t, repo.Validate())

	return repo, bunDB
}

func seedRoles(t *testing.T, repo identity.RepositoryManager) {
	t.Helper()
	require.NoError(t, repo.Roles().EnsureRoles(context.Background(), identity.AllRoles()...))
}

// testHasher keeps bcrypt cheap so the suite stays fast.
func testHasher() identity.PasswordHasher {
	return identity.NewPasswordHasher(4)
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

// recordingNotifier captures outbound notifications, optionally failing
// every send to exercise degraded delivery.
type recordingNotifier struct {
	mu       sync.Mutex
	Messages []sentMessage
	FailWith error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.FailWith != nil {
		return n.FailWith
	}

	n.Messages = append(n.Messages, sentMessage{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Messages)
}

// lastToken extracts the opaque token from the link embedded in the most
// recent message.
func (n *recordingNotifier) lastToken(t *testing.T) string {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.Messages, "expected at least one notification")

	body := n.Messages[len(n.Messages)-1].Body
	start := strings.Index(body, `href="`)
	require.GreaterOrEqual(t, start, 0, "message body should carry a link")

	link := body[start+len(`href="`):]
	end := strings.Index(link, `"`)
	require.GreaterOrEqual(t, end, 0)
	link = link[:end]

	parts := strings.Split(link, "/")
	return parts[len(parts)-1]
}

// recordingSink captures activity events.
type recordingSink struct {
	mu     sync.Mutex
	Events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
	return nil
}

func (s *recordingSink) eventTypes() []identity.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]identity.ActivityEventType, 0, len(s.Events))
	for _, e := range s.Events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) has(eventType identity.ActivityEventType) bool {
	for _, e := range s.eventTypes() {
		if e == eventType {
			return true
		}
	}
	return false
}

type accountsFixture struct {
	Repo     identity.RepositoryManager
	Accounts *identity.Accounts
	Tokens   identity.TokenService
	Sessions identity.SessionIssuer
	Notifier *recordingNotifier
	Sink     *recordingSink
}

func setupAccounts(t *testing.T) *accountsFixture {
	t.Helper()

	repo, _ := setupTestDB(t)
	seedRoles(t, repo)

	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	tokens := identity.NewTokenService(repo)
	sessions := identity.NewSessionIssuer([]byte("test-signing-key"))

	accounts := identity.NewAccounts(repo, tokens, sessions,
		identity.WithPasswordHasher(testHasher()),
		identity.WithNotifier(notifier),
		identity.WithActivitySink(sink),
		identity.WithLinkBaseURL("https://app.example.com/auth"),
	)

	return &accountsFixture{
		Repo:     repo,
		Accounts: accounts,
		Tokens:   tokens,
		Sessions: sessions,
		Notifier: notifier,
		Sink:     sink,
	}
}
