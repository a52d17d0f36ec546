package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Roles interface {
	repository.Repository[*Role]

	// EnsureRoles seeds the fixed role set. Idempotent: existing roles are
	// left untouched, safe to call on every process start.
	EnsureRoles(ctx context.Context, names ...RoleName) error
	EnsureRolesTx(ctx context.Context, tx bun.IDB, names ...RoleName) error

	GetByName(ctx context.Context, name RoleName) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error)

	// Assign grants a role to a user. Additive: existing memberships are
	// kept, assigning an already held role is a no-op success.
	Assign(ctx context.Context, userID uuid.UUID, name RoleName) error
	AssignTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name RoleName) error
	Revoke(ctx context.Context, userID uuid.UUID, name RoleName) error
	RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name RoleName) error

	ListForUser(ctx context.Context, userID uuid.UUID) ([]RoleName, error)
	ListForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]RoleName, error)
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (a *roles) EnsureRoles(ctx context.Context, names ...RoleName) error {
	return a.EnsureRolesTx(ctx, a.db, names...)
}

func (a *roles) EnsureRolesTx(ctx context.Context, tx bun.IDB, names ...RoleName) error {
	for _, name := range names {
		if !name.IsValid() {
			return ErrRoleNotFound.WithMetadata(map[string]any{
				"role": string(name),
			})
		}

		role := &Role{
			ID:   uuid.New(),
			Name: string(name),
		}

		_, err := tx.NewInsert().
			Model(role).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *roles) GetByName(ctx context.Context, name RoleName) (*Role, error) {
	return a.GetByNameTx(ctx, a.db, name)
}

func (a *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", string(name)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound.WithMetadata(map[string]any{
				"role": string(name),
			})
		}
		return nil, err
	}

	return record, nil
}

func (a *roles) Assign(ctx context.Context, userID uuid.UUID, name RoleName) error {
	return a.AssignTx(ctx, a.db, userID, name)
}

func (a *roles) AssignTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name RoleName) error {
	role, err := a.GetByNameTx(ctx, tx, name)
	if err != nil {
		return err
	}

	if err := a.ensureUserExists(ctx, tx, userID); err != nil {
		return err
	}

	membership := &UserRole{
		UserID: userID,
		RoleID: role.ID,
	}

	_, err = tx.NewInsert().
		Model(membership).
		On("CONFLICT (user_id, role_id) DO NOTHING").
		Exec(ctx)

	return err
}

func (a *roles) Revoke(ctx context.Context, userID uuid.UUID, name RoleName) error {
	return a.RevokeTx(ctx, a.db, userID, name)
}

func (a *roles) RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, name RoleName) error {
	role, err := a.GetByNameTx(ctx, tx, name)
	if err != nil {
		return err
	}

	_, err = tx.NewDelete().
		Model((*UserRole)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.role_id = ?", role.ID).
		Exec(ctx)

	return err
}

func (a *roles) ListForUser(ctx context.Context, userID uuid.UUID) ([]RoleName, error) {
	return a.ListForUserTx(ctx, a.db, userID)
}

func (a *roles) ListForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]RoleName, error) {
	var names []string
	err := tx.NewSelect().
		Model((*UserRole)(nil)).
		Join("JOIN roles AS rol ON rol.id = ?TableAlias.role_id").
		Where("?TableAlias.user_id = ?", userID).
		Column("rol.name").
		Order("rol.name ASC").
		Scan(ctx, &names)

	if err != nil {
		return nil, err
	}

	out := make([]RoleName, 0, len(names))
	for _, n := range names {
		out = append(out, RoleName(n))
	}

	return out, nil
}

func (a *roles) ensureUserExists(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	exists, err := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", userID).
		Where("?TableAlias.deleted_at IS NULL").
		Exists(ctx)

	if err != nil {
		return err
	}

	if !exists {
		return ErrUserNotFound.WithMetadata(map[string]any{
			"user_id": userID.String(),
		})
	}

	return nil
}
