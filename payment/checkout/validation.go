package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every field of an Input that was missing or invalid.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Reason
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "ip":
		return "must be an IP address"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// validate checks the struct tags of in and the fiat total, collecting every
// failure into one *ValidationError.
func (f *Factory) validate(in Input) error {
	verr := &ValidationError{}

	if err := f.validator.Struct(in); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		for _, fe := range errs {
			verr.add(fe.Field(), reason(fe))
		}
	}

	switch base := in.baseTotal(); {
	case base.IsZero() && in.Price.IsZero():
		verr.add("price", "is required")
	case !base.IsPositive():
		verr.add("price", "must be greater than zero")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
