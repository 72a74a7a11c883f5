package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/practice-local/pkg/errors"
)

// Validator provides validation functionality
type Validator interface {
	Validate(obj interface{}) error
}

type structValidator struct {
	v        *validator.Validate
	messages map[string]string
}

// DefaultMessages maps rule tags to readable messages.
func DefaultMessages() map[string]string {
	return map[string]string{
		"required":        "is required",
		"notblank":        "must not be blank",
		"required_if":     "is required",
		"required_unless": "is required",
		"email":           "must be a valid email",
		"min":             "is too short",
		"max":             "is too long",
		"gt":              "must be greater than %s",
		"gte":             "must be at least %s",
		"lte":             "must be at most %s",
		"oneof":           "must be one of: %s",
	}
}

func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// notblank rejects strings made only of whitespace
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.String {
			return true
		}
		return strings.TrimSpace(f.String()) != ""
	})
	return &structValidator{v: v, messages: DefaultMessages()}
}

// Validate checks obj against its struct tags and reports every failing field.
func (s *structValidator) Validate(obj interface{}) error {
	err := s.v.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.BadRequest("invalid input", err)
	}

	fields := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.FieldError{
			Field:   fieldPath(fe),
			Rule:    fe.Tag(),
			Message: s.message(fe),
		})
	}
	return errors.NewValidation(fields...)
}

func (s *structValidator) message(fe validator.FieldError) string {
	msg, ok := s.messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed %s", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// fieldPath drops the top-level struct name: "CreatePatientRequest.firstName" -> "firstName".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
