package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Password policy bounds. The upper bound matches bcrypt's input limit.
var (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// ValidatePassword enforces the password policy. Violations surface as
// ErrWeakPassword with the rule details attached.
func ValidatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(MinPasswordLength, MaxPasswordLength),
	)
	if err != nil {
		return ErrWeakPassword.WithMetadata(map[string]any{
			"reason":     err.Error(),
			"min_length": MinPasswordLength,
			"max_length": MaxPasswordLength,
		})
	}
	return nil
}

func validateRegistration(msg RegisterMessage) error {
	err := validation.Errors{
		"email": validation.Validate(msg.Email,
			validation.Required,
			is.Email,
		),
		"full_name": validation.Validate(msg.FullName,
			validation.Required,
			validation.Length(1, 250),
		),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration input").
			WithCode(goerrors.CodeBadRequest)
	}

	return ValidatePassword(msg.Password)
}
