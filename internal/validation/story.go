package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// MaxPhotoSize is the largest photo the story service accepts.
const MaxPhotoSize = 1 << 20

// NewStory is the user input for creating a story.
type NewStory struct {
	Description string   `validate:"required"`
	Photo       []byte   `validate:"required,max=1048576,image"`
	Lat         *float64 `validate:"required_with=Lon,omitnil,gte=-90,lte=90"`
	Lon         *float64 `validate:"required_with=Lat,omitnil,gte=-180,lte=180"`
}

type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type Registration struct {
	Name     string `validate:"required,min=2,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

// FieldError is one failed rule.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Rule)
}

// ValidationError lists every rule an input broke.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("image", func(fl validator.FieldLevel) bool {
		data, ok := fl.Field().Interface().([]byte)
		if !ok {
			return false
		}
		return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
	})
	return v
}

func ValidateNewStory(s NewStory) error {
	return check(s)
}

func ValidateCredentials(c Credentials) error {
	return check(c)
}

func ValidateRegistration(r Registration) error {
	return check(r)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
