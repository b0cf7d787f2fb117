package validate

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	hasDigit  = regexp.MustCompile(`[0-9]`)
	hasLower  = regexp.MustCompile(`[a-z]`)
	hasUpper  = regexp.MustCompile(`[A-Z]`)
	hasSymbol = regexp.MustCompile(`[*.!@$%^&(){}\[\]:;<>,?/~_+\-=|\\#]`)
)

// New returns a validator with the "password" and "category" tags registered.
func New(categories []string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return Password(fl.Field().String())
	})

	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	})

	return v
}

// Password requires 8 to 32 characters with a digit, both cases and a symbol.
func Password(p string) bool {
	if len(p) < 8 || len(p) > 32 {
		return false
	}

	return hasDigit.MatchString(p) &&
		hasLower.MatchString(p) &&
		hasUpper.MatchString(p) &&
		hasSymbol.MatchString(p)
}
