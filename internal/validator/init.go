package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var (
	validate *validator.Validate

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

func init() {
	// Initialize validation
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so callers can match request keys.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("appemail", isEmail); err != nil {
		panic(err)
	}
	// max counts runes; bcrypt limits bytes.
	if err := validate.RegisterValidation("bcryptmax", fitsBcrypt); err != nil {
		panic(err)
	}
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return validate.Struct(s)
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func isEmail(fl validator.FieldLevel) bool {
	return IsEmail(fl.Field().String())
}

func fitsBcrypt(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPasswordBytes
}

// FieldErrors maps each failing field (by JSON name) to the first tag it failed.
// It returns false when err is not a validation error.
func FieldErrors(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields, true
}

// HasTag reports whether any field failed the given tag.
func HasTag(fields map[string]string, tag string) bool {
	for _, t := range fields {
		if t == tag {
			return true
		}
	}
	return false
}
