package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Admin exposes the manual review workflow. Every operation takes the acting
// session and refuses callers who hold neither the admin nor the manager
// role, regardless of whether the underlying change would be a no-op.
type Admin struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// AdminOption customizes the admin workflow.
type AdminOption func(*Admin)

// WithAdminActivitySink configures the audit sink for admin actions.
func WithAdminActivitySink(sink ActivitySink) AdminOption {
	return func(a *Admin) {
		a.activity = normalizeActivitySink(sink)
	}
}

// WithAdminLogger overrides the logger.
func WithAdminLogger(logger Logger) AdminOption {
	return func(a *Admin) {
		a.logger = normalizeLogger(logger)
	}
}

// NewAdmin returns a new admin workflow.
func NewAdmin(repo RepositoryManager, opts ...AdminOption) *Admin {
	a := &Admin{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// ListPendingUsers returns accounts awaiting approval, ordered by
// registration time so the oldest request is reviewed first.
func (a *Admin) ListPendingUsers(ctx context.Context, actor Session) ([]*User, error) {
	if err := RequireAnyRole(actor, AdminRoles...); err != nil {
		return nil, err
	}
	return a.repo.Users().ListPending(ctx)
}

// ListAllUsers returns every account with its role memberships.
func (a *Admin) ListAllUsers(ctx context.Context, actor Session) ([]*User, error) {
	if err := RequireAnyRole(actor, AdminRoles...); err != nil {
		return nil, err
	}
	return a.repo.Users().ListAll(ctx)
}

// ApproveUser marks the account approved. Approving an already approved
// account succeeds without changing anything.
func (a *Admin) ApproveUser(ctx context.Context, actor Session, userID uuid.UUID) (*User, error) {
	if err := RequireAnyRole(actor, AdminRoles...); err != nil {
		return nil, err
	}

	user, err := a.repo.Users().Approve(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUserNotFound.WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
		}
		return nil, err
	}

	a.recordActivity(ctx, ActivityEventUserApproved, actor, userID, map[string]any{
		"email": user.Email,
	})

	return user, nil
}

// AssignRole grants an additional role to the user. Granting a role the user
// already holds is a no-op; existing roles are never displaced.
func (a *Admin) AssignRole(ctx context.Context, actor Session, userID uuid.UUID, role RoleName) error {
	if err := RequireAnyRole(actor, AdminRoles...); err != nil {
		return err
	}

	if err := a.repo.Roles().Assign(ctx, userID, role); err != nil {
		return err
	}

	a.recordActivity(ctx, ActivityEventRoleGranted, actor, userID, map[string]any{
		"role": role.String(),
	})

	return nil
}

// RevokeRole removes a role from the user. Revoking a role the user does not
// hold is a no-op.
func (a *Admin) RevokeRole(ctx context.Context, actor Session, userID uuid.UUID, role RoleName) error {
	if err := RequireAnyRole(actor, AdminRoles...); err != nil {
		return err
	}

	if err := a.repo.Roles().Revoke(ctx, userID, role); err != nil {
		return err
	}

	a.recordActivity(ctx, ActivityEventRoleRevoked, actor, userID, map[string]any{
		"role": role.String(),
	})

	return nil
}

func (a *Admin) recordActivity(ctx context.Context, eventType ActivityEventType, actor Session, userID uuid.UUID, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID.String(),
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if actor != nil {
		event.Actor = ActorRef{ID: actor.GetUserID(), Type: "admin"}
	}

	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}
}
