package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// DefaultAdminEmail is the initial administrator account created by
// Bootstrap when no email override is given.
const DefaultAdminEmail = "admin@usermanager.com"

// BootstrapConfig controls the initial seeding pass.
type BootstrapConfig struct {
	adminEmail    string
	adminPassword string
	adminFullName string
	hasher        PasswordHasher
	logger        Logger
}

// BootstrapOption customizes Bootstrap.
type BootstrapOption func(*BootstrapConfig)

// WithAdminEmail overrides the seeded administrator email.
func WithAdminEmail(email string) BootstrapOption {
	return func(c *BootstrapConfig) {
		if email != "" {
			c.adminEmail = email
		}
	}
}

// WithAdminPassword sets the seeded administrator password. Without it the
// account gets an unguessable hash and must go through a password reset
// before it can log in.
func WithAdminPassword(password string) BootstrapOption {
	return func(c *BootstrapConfig) {
		c.adminPassword = password
	}
}

// WithAdminFullName overrides the seeded administrator display name.
func WithAdminFullName(name string) BootstrapOption {
	return func(c *BootstrapConfig) {
		if name != "" {
			c.adminFullName = name
		}
	}
}

// WithBootstrapHasher overrides the credential hasher used for the seed
// password.
func WithBootstrapHasher(hasher PasswordHasher) BootstrapOption {
	return func(c *BootstrapConfig) {
		if hasher != nil {
			c.hasher = hasher
		}
	}
}

// WithBootstrapLogger overrides the logger.
func WithBootstrapLogger(logger Logger) BootstrapOption {
	return func(c *BootstrapConfig) {
		c.logger = normalizeLogger(logger)
	}
}

// Bootstrap seeds the built-in roles and the initial administrator account
// in one transaction. It is idempotent: running it against an already seeded
// store changes nothing, and an existing admin account keeps whatever
// credential and profile it has. The admin ID is derived from the email so
// repeated runs across deployments converge on the same record.
func Bootstrap(ctx context.Context, repo RepositoryManager, opts ...BootstrapOption) (*User, error) {
	cfg := &BootstrapConfig{
		adminEmail:    DefaultAdminEmail,
		adminFullName: "System Administrator",
		hasher:        NewPasswordHasher(0),
		logger:        defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	hash := RandomPasswordHash()
	if cfg.adminPassword != "" {
		var err error
		if hash, err = cfg.hasher.HashPassword(cfg.adminPassword); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid bootstrap admin password")
		}
	}

	admin := &User{
		Email:          NormalizeEmail(cfg.adminEmail),
		FullName:       cfg.adminFullName,
		PasswordHash:   hash,
		EmailConfirmed: true,
		IsApproved:     true,
	}

	if id, err := hashid.NewUUID(admin.Email); err == nil {
		admin.ID = id
	}

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.Roles().EnsureRolesTx(ctx, tx, AllRoles()...); err != nil {
			return err
		}

		var err error
		if admin, err = repo.Users().GetOrCreateTx(ctx, tx, admin); err != nil {
			return err
		}

		return repo.Roles().AssignTx(ctx, tx, admin.ID, RoleAdmin)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "bootstrap failed")
	}

	cfg.logger.Info("bootstrap complete, admin account %s", admin.Email)

	return admin, nil
}
