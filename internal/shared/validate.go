package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

// embeddedPrefix marks untagged embedded structs, whose fields JSON promotes
// to the parent object.
const embeddedPrefix = "~"

// NewValidator returns a validator that reports JSON field names. Fields
// hidden from JSON are reported in snake_case.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if fld.Anonymous && name == "" {
			return embeddedPrefix + fld.Name
		}
		if name == "" || name == "-" {
			return snakeCase(fld.Name)
		}
		return name
	})
	return v
}

// ValidationError converts validator output into a ledger.ValidationError
// naming the first offending field.
func ValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	fe := fieldErrs[0]
	return ledger.Invalid(fieldPath(fe.Namespace()), reason(fe))
}

// fieldPath drops the root type name and every embedded struct segment.
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	kept := parts[:0]
	for _, part := range parts {
		if strings.HasPrefix(part, embeddedPrefix) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ".")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func snakeCase(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		if unicode.IsUpper(r) {
			if prevLower {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
