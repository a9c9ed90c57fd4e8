// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/archivarius/internal/hashing"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// GetValidator returns the process-wide validator. Struct metadata is
// cached inside the instance, so every caller shares one.
func GetValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// hexhash: a full identity token as it appears in API paths.
		// Short directory tokens are resolved to full hashes before
		// they reach a validated request struct. Registration only
		// fails for a blank tag name.
		if err := validate.RegisterValidation("hexhash", isIdentityHash); err != nil {
			panic(fmt.Sprintf("validation: register hexhash: %v", err))
		}
	})
	return validate
}

// isIdentityHash defers to the hashing package's own syntax check, so
// the API accepts exactly the tokens the stores produce. Deliberately
// stricter than ParseHash: no case normalization at the boundary.
func isIdentityHash(fl validator.FieldLevel) bool {
	return hashing.Hash(fl.Field().String()).Valid()
}

// FieldError describes one failed field of a validated struct.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Value   interface{}
	Message string
}

func (e FieldError) Error() string { return e.Message }

// Errors collects the field failures of one ValidateStruct call.
type Errors []FieldError

// Error joins the per-field messages.
func (v Errors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Message
	}
	return strings.Join(parts, "; ")
}

// APIError mirrors the ops API envelope error block. Declared here
// rather than imported to keep the api -> validation dependency
// one-way.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError renders the failures in the envelope error format. A
// single failure keeps its message and field details at the top level;
// several failures are listed under a fields array.
func (v Errors) ToAPIError() *APIError {
	switch len(v) {
	case 0:
		return &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	case 1:
		fe := v[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: fe.Message,
			Details: map[string]interface{}{
				"field": fe.Field,
				"tag":   fe.Tag,
				"value": fe.Value,
			},
		}
	}

	fields := make([]map[string]interface{}, len(v))
	msgs := make([]string, len(v))
	for i, fe := range v {
		fields[i] = map[string]interface{}{
			"field":   fe.Field,
			"tag":     fe.Tag,
			"message": fe.Message,
		}
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(msgs, "; "),
		Details: map[string]interface{}{"fields": fields},
	}
}

// ValidateStruct runs the shared validator over s. A nil return means
// s passed.
func ValidateStruct(s interface{}) Errors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: s was not a struct. Caller bug, but
		// still reported through the normal shape.
		return Errors{{Field: "unknown", Tag: "unknown", Message: err.Error()}}
	}

	out := make(Errors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: message(fe),
		}
	}
	return out
}

// message renders one field failure for humans. The hexhash and oneof
// branches carry the request vocabulary operators actually see.
func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch tag := fe.Tag(); tag {
	case "required":
		return field + " is required"
	case "hexhash":
		return field + " must be a 64-character lowercase hex hash"
	case "datetime":
		return field + " must be a valid date/time in RFC3339 format"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min", "max":
		bound := "at least"
		if tag == "max" {
			bound = "at most"
		}
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
