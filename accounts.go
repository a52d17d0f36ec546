package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// RegisterMessage carries the registration input.
type RegisterMessage struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (e RegisterMessage) Type() string { return "user.register" }

// Accounts orchestrates registration, confirmation, authentication, and
// password resets, enforcing the two-gate invariant at login: a user only
// authenticates when the email is confirmed AND the account is approved.
type Accounts struct {
	repo        RepositoryManager
	hasher      PasswordHasher
	tokens      TokenService
	sessions    SessionIssuer
	notifier    Notifier
	activity    ActivitySink
	logger      Logger
	linkBaseURL string
	phoneRegion string
}

// AccountsOption customizes the account manager.
type AccountsOption func(*Accounts)

// WithPasswordHasher overrides the credential hasher.
func WithPasswordHasher(h PasswordHasher) AccountsOption {
	return func(a *Accounts) {
		if h != nil {
			a.hasher = h
		}
	}
}

// WithNotifier sets the outbound delivery collaborator.
func WithNotifier(n Notifier) AccountsOption {
	return func(a *Accounts) {
		a.notifier = normalizeNotifier(n)
	}
}

// WithActivitySink configures an ActivitySink for emitting account events.
func WithActivitySink(sink ActivitySink) AccountsOption {
	return func(a *Accounts) {
		a.activity = normalizeActivitySink(sink)
	}
}

// WithAccountsLogger overrides the logger.
func WithAccountsLogger(logger Logger) AccountsOption {
	return func(a *Accounts) {
		a.logger = normalizeLogger(logger)
	}
}

// WithLinkBaseURL sets the base URL embedded in confirmation and reset links.
func WithLinkBaseURL(base string) AccountsOption {
	return func(a *Accounts) {
		if base != "" {
			a.linkBaseURL = base
		}
	}
}

// WithPhoneRegion sets the default region used to parse phone numbers
// supplied without a country prefix.
func WithPhoneRegion(region string) AccountsOption {
	return func(a *Accounts) {
		if region != "" {
			a.phoneRegion = region
		}
	}
}

// NewAccounts returns a new account manager.
func NewAccounts(repo RepositoryManager, tokens TokenService, sessions SessionIssuer, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		repo:        repo,
		hasher:      NewPasswordHasher(0),
		tokens:      tokens,
		sessions:    sessions,
		notifier:    noopNotifier{},
		activity:    noopActivitySink{},
		logger:      defLogger{},
		linkBaseURL: "/auth",
		phoneRegion: "US",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Register creates a new unconfirmed, unapproved account and dispatches the
// confirmation link. Notification delivery is best-effort: a failed send is
// logged and the user can request a resend.
func (a *Accounts) Register(ctx context.Context, msg RegisterMessage) (*User, error) {
	if err := validateRegistration(msg); err != nil {
		return nil, err
	}

	phone, err := a.normalizePhone(msg.Phone)
	if err != nil {
		return nil, err
	}

	hash, err := a.hasher.HashPassword(msg.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Email:        NormalizeEmail(msg.Email),
		FullName:     msg.FullName,
		Phone:        phone,
		PasswordHash: hash,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user, err = a.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		return a.repo.Roles().AssignTx(ctx, tx, user.ID, RoleUser)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	a.recordActivity(ctx, ActivityEventUserRegistered, actorUser(user.ID), user.ID, map[string]any{
		"email": user.Email,
	})

	a.dispatchToken(ctx, user, PurposeConfirmEmail)

	return user, nil
}

// ResendConfirmation issues a fresh confirmation link. It reports success
// regardless of whether the email maps to an account so anonymous callers
// cannot probe for registrations.
func (a *Accounts) ResendConfirmation(ctx context.Context, email string) error {
	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		a.logger.Debug("resend confirmation lookup failed: %v", err)
		return nil
	}

	if user.EmailConfirmed {
		return nil
	}

	a.dispatchToken(ctx, user, PurposeConfirmEmail)
	return nil
}

// ConfirmEmail redeems a confirmation token and marks the account confirmed.
func (a *Accounts) ConfirmEmail(ctx context.Context, token string) error {
	record, err := a.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}

	if record.Purpose != PurposeConfirmEmail {
		return ErrTokenInvalid.WithMetadata(map[string]any{
			"purpose": string(record.Purpose),
		})
	}

	user, err := a.repo.Users().ConfirmEmail(ctx, record.UserID)
	if err != nil {
		return err
	}

	a.recordActivity(ctx, ActivityEventEmailConfirmed, actorUser(user.ID), user.ID, nil)

	return nil
}

// Authenticate verifies the credential and both account gates, returning a
// signed session. Failures report the first blocking gate: confirmation
// before approval, approval before password. A caller who registers a known
// email can learn the account exists, a tradeoff accepted for UX clarity;
// unknown emails and wrong passwords are indistinguishable.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		a.emitLoginFailure(ctx, email, uuid.Nil, ErrInvalidCredentials)
		return "", ErrInvalidCredentials
	}

	if err := user.CanAuthenticate(); err != nil {
		a.emitLoginFailure(ctx, email, user.ID, err)
		return "", err
	}

	if err := a.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		a.emitLoginFailure(ctx, email, user.ID, ErrInvalidCredentials)
		return "", ErrInvalidCredentials
	}

	session, err := a.sessions.IssueSession(user, user.RoleNames())
	if err != nil {
		a.logger.Error("failed to issue session: %v", err)
		return "", err
	}

	a.recordActivity(ctx, ActivityEventLoginSuccess, actorUser(user.ID), user.ID, map[string]any{
		"email": user.Email,
	})

	return session, nil
}

// RequestPasswordReset issues a reset link when the email maps to an
// account. Always reports success so callers cannot enumerate accounts; a
// missing user issues no token and sends nothing.
func (a *Accounts) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		a.logger.Debug("password reset lookup failed: %v", err)
		return nil
	}

	a.dispatchToken(ctx, user, PurposeResetPassword)
	return nil
}

// ResetPassword redeems a reset token and installs the new credential. The
// policy is checked before the token is consumed so a weak password does not
// burn the single-use link.
func (a *Accounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	record, err := a.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}

	if record.Purpose != PurposeResetPassword {
		return ErrTokenInvalid.WithMetadata(map[string]any{
			"purpose": string(record.Purpose),
		})
	}

	hash, err := a.hasher.HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	if err := a.repo.Users().ResetPassword(ctx, record.UserID, hash); err != nil {
		return err
	}

	a.recordActivity(ctx, ActivityEventPasswordResetSuccess, actorUser(record.UserID), record.UserID, map[string]any{
		"token_id": record.ID.String(),
	})

	return nil
}

// RemoveAccount soft deletes a user and cascade-invalidates its tokens.
func (a *Accounts) RemoveAccount(ctx context.Context, userID uuid.UUID) error {
	return a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.repo.Users().RemoveTx(ctx, tx, userID); err != nil {
			return err
		}
		return a.repo.Tokens().InvalidateForUserTx(ctx, tx, userID)
	})
}

// dispatchToken issues a single-use token and hands the link to the
// notifier. The state transition already committed, failures here only
// degrade delivery and are logged, never surfaced as operation failures.
func (a *Accounts) dispatchToken(ctx context.Context, user *User, purpose TokenPurpose) {
	value, err := a.tokens.Issue(ctx, user.ID, purpose)
	if err != nil {
		a.logger.Error("failed to issue %s token: %v", purpose, err)
		return
	}

	var subject, body string
	if purpose == PurposeResetPassword {
		subject, body = passwordResetMessage(a.linkBaseURL, value)
	} else {
		subject, body = confirmEmailMessage(a.linkBaseURL, value)
	}

	if err := a.notifier.Send(ctx, user.Email, subject, body); err != nil {
		a.logger.Warn("notification delivery degraded for %s (%s): %v", user.Email, purpose, err)
	}
}

func (a *Accounts) normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, a.phoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": phone})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (a *Accounts) emitLoginFailure(ctx context.Context, email string, userID uuid.UUID, cause error) {
	id := ""
	if userID != uuid.Nil {
		id = userID.String()
	}

	a.recordActivity(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown", ID: id}, userID, map[string]any{
		"email": NormalizeEmail(email),
		"error": cause.Error(),
	})
}

func (a *Accounts) recordActivity(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID uuid.UUID, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if userID != uuid.Nil {
		event.UserID = userID.String()
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(a.activity).Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}
}

func actorUser(id uuid.UUID) ActorRef {
	return ActorRef{
		ID:   id.String(),
		Type: "user",
	}
}
