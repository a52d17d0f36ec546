package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Default token lifetimes. Confirmation links live a day; reset links are a
// stronger credential and expire faster.
var (
	DefaultConfirmTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL   = 4 * time.Hour
)

const tokenValueBytes = 32

// TokenService issues and redeems single-use account tokens. The value
// handed out is opaque random material; only its digest is stored, so a
// leaked token table yields nothing redeemable.
type TokenService interface {
	Issue(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) (string, error)
	// Validate redeems the token: validation and invalidation are one atomic
	// operation, a second redemption of the same value fails with
	// ErrTokenAlreadyUsed.
	Validate(ctx context.Context, token string) (*AccessToken, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	repo       RepositoryManager
	confirmTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	logger     Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenServiceOption customizes token service construction.
type TokenServiceOption func(*TokenServiceImpl)

// WithConfirmTokenTTL overrides the confirm-email token lifetime.
func WithConfirmTokenTTL(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.confirmTTL = d
		}
	}
}

// WithResetTokenTTL overrides the reset-password token lifetime.
func WithResetTokenTTL(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.resetTTL = d
		}
	}
}

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(repo RepositoryManager, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		repo:       repo,
		confirmTTL: DefaultConfirmTokenTTL,
		resetTTL:   DefaultResetTokenTTL,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Issue mints a fresh token for the user and purpose, superseding any
// outstanding unconsumed token of the same purpose so resends leave exactly
// one redeemable value.
func (ts *TokenServiceImpl) Issue(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) (string, error) {
	if !purpose.IsValid() {
		return "", ErrTokenInvalid.WithMetadata(map[string]any{
			"purpose": string(purpose),
		})
	}

	value, digest, err := mintTokenValue()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token material")
	}

	record := &AccessToken{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   purpose,
		Digest:    digest,
		ExpiresAt: ts.now().Add(ts.ttl(purpose)),
	}

	err = ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ts.repo.Tokens().SupersedeTx(ctx, tx, userID, purpose); err != nil {
			return err
		}

		_, err := ts.repo.Tokens().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token")
	}

	return value, nil
}

// Validate redeems a token and returns its row (subject user and purpose).
func (ts *TokenServiceImpl) Validate(ctx context.Context, token string) (*AccessToken, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	return ts.repo.Tokens().Consume(ctx, digestToken(token), ts.now())
}

func (ts *TokenServiceImpl) ttl(purpose TokenPurpose) time.Duration {
	if purpose == PurposeResetPassword {
		return ts.resetTTL
	}
	return ts.confirmTTL
}

func mintTokenValue() (value, digest string, err error) {
	buf := make([]byte, tokenValueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}

	value = base64.RawURLEncoding.EncodeToString(buf)
	return value, digestToken(value), nil
}

func digestToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
