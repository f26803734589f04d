package identity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Format validation for client-supplied fields. The rules are registered on
// a shared validator instance so that config validation and the session
// handlers apply exactly the same predicates.

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

	// Swiss national phone format: leading zero plus nine digits.
	phoneRegex = regexp.MustCompile(`^0[0-9]{9}$`)
)

// passwordSpecials is the set of special characters accepted by the password
// policy.
const passwordSpecials = `.!@#$%^&{}[]:;<>,?\/~_+-=|'*()`

var validate = newValidator()

// newValidator builds the validator instance with the custom rules used for
// directory fields.
func newValidator() *validator.Validate {
	v := validator.New()

	// Registration only fails for empty tag names, which would be a
	// programming error here.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone_ch", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("user_password", func(fl validator.FieldLevel) bool {
		return passwordMeetsPolicy(fl.Field().String())
	})

	return v
}

// passwordMeetsPolicy enforces the password policy:
//   - 8 to 64 characters
//   - at least one digit, one lowercase, one uppercase
//   - at least one special character from passwordSpecials
func passwordMeetsPolicy(password string) bool {
	if len(password) < 8 || len(password) > 64 {
		return false
	}

	var hasDigit, hasLower, hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	return hasDigit && hasLower && hasUpper && hasSpecial
}

// ValidUsername reports whether the username satisfies the username policy:
// 1-32 ASCII alphanumerics or underscores.
func ValidUsername(username string) bool {
	return validate.Var(username, "username") == nil
}

// ValidPhone reports whether the phone number is in the accepted national
// format (0xxxxxxxxx).
func ValidPhone(phone string) bool {
	return validate.Var(phone, "phone_ch") == nil
}

// ValidPassword reports whether the password satisfies the password policy.
func ValidPassword(password string) bool {
	return validate.Var(password, "user_password") == nil
}
