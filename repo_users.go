package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ApproveUserSQL = `UPDATE "users" AS "usr"
SET
	"is_approved" = TRUE,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var ConfirmUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"email_confirmed" = TRUE,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Password reset also confirms the email: redeeming a reset token proves
// control of the address.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"email_confirmed" = TRUE,
	"password_hash" = ?,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetOrCreate(ctx context.Context, record *User) (*User, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	ListPending(ctx context.Context) ([]*User, error)
	ListAll(ctx context.Context) ([]*User, error)

	Approve(ctx context.Context, id uuid.UUID) (*User, error)
	ApproveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	ConfirmEmail(ctx context.Context, id uuid.UUID) (*User, error)
	ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	// Mutate re-reads the record, applies fn, and persists under optimistic
	// concurrency. A lost race is retried once with a fresh read before
	// ErrConcurrencyConflict surfaces.
	Mutate(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error)

	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail.WithMetadata(map[string]any{
				"email": record.Email,
			})
		}
		return nil, err
	}

	return created, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ListPending(ctx context.Context) ([]*User, error) {
	return a.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.is_approved = FALSE")
	})
}

func (a *users) ListAll(ctx context.Context) ([]*User, error) {
	return a.list(ctx, nil)
}

func (a *users) list(ctx context.Context, criteria func(*bun.SelectQuery) *bun.SelectQuery) ([]*User, error) {
	records := []*User{}
	q := a.db.NewSelect().
		Model(&records).
		Relation("Roles").
		Order("usr.created_at ASC")

	if criteria != nil {
		q = criteria(q)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

// Approve is idempotent: approving an already approved user is a no-op success.
func (a *users) Approve(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ApproveTx(ctx, a.db, id)
}

func (a *users) ApproveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.rawOne(ctx, tx, ApproveUserSQL, id.String())
}

func (a *users) ConfirmEmail(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ConfirmEmailTx(ctx, a.db, id)
}

func (a *users) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.rawOne(ctx, tx, ConfirmUserEmailSQL, id.String())
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := a.rawOne(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	return err
}

func (a *users) rawOne(ctx context.Context, tx bun.IDB, query string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, query, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"args": args,
			})
	}

	return res[0], nil
}

func (a *users) Mutate(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	retried := false
	for {
		user, err := a.Repository.GetByID(ctx, id.String())
		if err != nil {
			return nil, err
		}

		if err := fn(user); err != nil {
			return nil, err
		}

		updated, err := a.updateChecked(ctx, user)
		if err == nil {
			return updated, nil
		}

		if !IsConcurrencyConflict(err) || retried {
			return nil, err
		}
		retried = true
	}
}

// updateChecked persists the record only if its version column still matches
// the version it was read at, bumping the version on success.
func (a *users) updateChecked(ctx context.Context, user *User) (*User, error) {
	prev := user.Version
	user.Version = prev + 1

	res, err := a.db.NewUpdate().
		Model(user).
		WherePK().
		Where("?TableAlias.version = ?", prev).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		user.Version = prev
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read update result")
	}

	if affected == 0 {
		user.Version = prev
		return nil, ErrConcurrencyConflict.WithMetadata(map[string]any{
			"user_id": user.ID.String(),
			"version": prev,
		})
	}

	return user, nil
}

func (a *users) GetOrCreate(ctx context.Context, record *User) (*User, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *users) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	user, err := a.GetByEmailTx(ctx, tx, record.Email)
	if err == nil {
		return user, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

// Remove soft deletes the user. Token invalidation piggybacks at the manager
// level so a deleted user cannot redeem outstanding tokens.
func (a *users) Remove(ctx context.Context, id uuid.UUID) error {
	return a.RemoveTx(ctx, a.db, id)
}

func (a *users) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrUserNotFound.WithMetadata(map[string]any{
			"user_id": id.String(),
		})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// isUniqueViolation matches the storage-level unique index error across the
// drivers we run on (sqlite in tests, postgres in deployments).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
