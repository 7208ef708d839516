package shared

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern          = regexp.MustCompile(`^[0-9\-+() ]*$`)
	businessNumberPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{5}$`)
)

// NewValidator returns a validator with the application's custom rules:
// "password", "phone" and "bizno". Field names in errors come from the
// `form` struct tag when present.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bizno", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || businessNumberPattern.MatchString(value)
	})
	return v
}

// StrongPassword reports whether pw has at least 8 characters including an
// upper case letter, a lower case letter, a digit and a symbol.
func StrongPassword(pw string) bool {
	if len([]rune(pw)) < 8 {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// FieldErrors flattens validator output into form field messages.
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["general"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "url", "http_url":
		return "Enter a valid URL"
	case "uuid", "uuid4":
		return "Select a valid item"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "oneof":
		return "Choose one of: " + fe.Param()
	case "eqfield":
		return "Values do not match"
	case "nefield":
		return "Must differ from the current value"
	case "password":
		return "Use 8+ characters with upper and lower case letters, a number and a symbol"
	case "phone":
		return "Only digits, spaces and - + ( ) are allowed"
	case "bizno":
		return "Use the format 000-00-00000"
	default:
		return "Invalid value"
	}
}
