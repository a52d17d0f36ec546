package identity

import (
	"context"
	"fmt"
)

// Notifier is the outbound delivery collaborator (email transport). Calls
// are fire-and-forget: a failed delivery is logged as degraded and never
// rolls back the state transition it is attached to.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, to, subject, htmlBody string) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, htmlBody)
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, string, string) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// ConsoleNotifier prints notifications to stdout, for development setups
// without an email transport.
type ConsoleNotifier struct{}

func (ConsoleNotifier) Send(_ context.Context, to, subject, htmlBody string) error {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", to)
	fmt.Printf("subject: %s\n", subject)
	fmt.Printf("body: %s\n", htmlBody)
	return nil
}

func confirmEmailMessage(baseURL, token string) (subject, body string) {
	subject = "Confirm your email address"
	body = fmt.Sprintf(
		`<p>Welcome! Confirm your email address by following this link:</p><p><a href="%s/confirm/%s">Confirm email</a></p>`,
		baseURL, token,
	)
	return subject, body
}

func passwordResetMessage(baseURL, token string) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(
		`<p>A password reset was requested for your account. Follow this link to choose a new password:</p><p><a href="%s/password-reset/%s">Reset password</a></p><p>If you did not request this you can ignore this message.</p>`,
		baseURL, token,
	)
	return subject, body
}
