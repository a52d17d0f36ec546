package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeTokenSQL is the atomic check-and-invalidate: the consumed_at guard
// closes the replay window: of two concurrent redemptions exactly one row
// update wins.
var ConsumeTokenSQL = `UPDATE "access_tokens" AS "tok"
SET
	"consumed_at" = ?
WHERE
	"tok"."digest" = ?
AND "tok"."consumed_at" IS NULL
AND "tok"."expires_at" > ?
RETURNING *;`

type Tokens interface {
	repository.Repository[*AccessToken]

	GetByDigest(ctx context.Context, digest string) (*AccessToken, error)

	// Consume atomically redeems the token with the given digest, returning
	// a typed failure describing why redemption was rejected.
	Consume(ctx context.Context, digest string, now time.Time) (*AccessToken, error)

	// Supersede drops outstanding unconsumed tokens for a user+purpose so a
	// resend leaves a single redeemable token.
	Supersede(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) error
	SupersedeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose) error

	// InvalidateForUser cascade-invalidates every token of a user, used when
	// the account is removed.
	InvalidateForUser(ctx context.Context, userID uuid.UUID) error
	InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error

	// PurgeExpired garbage-collects expired unconsumed rows. Opportunistic,
	// expiry is always re-checked at consumption time.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokens struct {
	repository.Repository[*AccessToken]
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	repo := repository.NewRepository[*AccessToken](db, repository.ModelHandlers[*AccessToken]{
		NewRecord: func() *AccessToken { return &AccessToken{} },
		GetID: func(t *AccessToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AccessToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "digest"
		},
	})

	return &tokens{
		Repository: repo,
		db:         db,
	}
}

func (a *tokens) GetByDigest(ctx context.Context, digest string) (*AccessToken, error) {
	record := &AccessToken{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.digest = ?", digest).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	return record, nil
}

func (a *tokens) Consume(ctx context.Context, digest string, now time.Time) (*AccessToken, error) {
	res, err := a.Repository.RawTx(ctx, a.db, ConsumeTokenSQL, now, digest, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}

	if len(res) > 0 {
		return res[0], nil
	}

	// The guarded update matched nothing. Read the row to report why.
	record, err := a.GetByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}

	if record.Consumed() {
		return nil, ErrTokenAlreadyUsed
	}

	if record.Expired(now) {
		return nil, ErrTokenExpired
	}

	// A concurrent redemption can slip between the update and the re-read.
	return nil, ErrTokenAlreadyUsed
}

func (a *tokens) Supersede(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) error {
	return a.SupersedeTx(ctx, a.db, userID, purpose)
}

func (a *tokens) SupersedeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose) error {
	_, err := tx.NewDelete().
		Model((*AccessToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", string(purpose)).
		Where("?TableAlias.consumed_at IS NULL").
		Exec(ctx)

	return err
}

func (a *tokens) InvalidateForUser(ctx context.Context, userID uuid.UUID) error {
	return a.InvalidateForUserTx(ctx, a.db, userID)
}

func (a *tokens) InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*AccessToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)

	return err
}

func (a *tokens) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*AccessToken)(nil)).
		Where("?TableAlias.expires_at <= ?", now).
		Where("?TableAlias.consumed_at IS NULL").
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return affected, nil
}
