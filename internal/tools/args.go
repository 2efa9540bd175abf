// ABOUTME: Argument decoding and validation for tool invocations
// ABOUTME: Decodes JSON into tagged structs and validates with go-playground/validator

package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func argValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeArgs decodes args into dst and validates its struct tags.
// dst should be pre-populated with defaults. Absent or null args decode as {}.
// Failures are returned as KindInvalidParams tool errors.
func DecodeArgs(args json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return InvalidParams("arguments must be a JSON object")
		}
		if err := json.Unmarshal(trimmed, dst); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				return InvalidParams("argument '%s' must be of type %s", typeErr.Field, typeErr.Type)
			}
			return InvalidParams("invalid arguments: %v", err)
		}
	}

	if err := argValidator().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return InvalidParams("%s", describeFieldError(verrs[0]))
		}
		return InvalidParams("invalid arguments: %v", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required argument '%s'", field)
	case "oneof":
		return fmt.Sprintf("argument '%s' must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		return fmt.Sprintf("argument '%s' must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("argument '%s' must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("argument '%s' failed '%s' validation", field, fe.Tag())
	}
}
