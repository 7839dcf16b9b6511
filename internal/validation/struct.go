// Package validation checks decoded payloads against their struct tags. It is used for
// model output, where a syntactically valid JSON document can still miss required fields,
// and for request bodies whose rules go beyond what gin binding reports well.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates v and returns an error naming every failing field by its JSON name.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": required"
	case "min":
		return fmt.Sprintf("%s: must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
	}
}

func init() {
	validate.RegisterTagNameFunc(jsonFieldName)
}

// jsonFieldName reports fields by their JSON key so messages match what the caller sent.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
