// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is one failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the JSON name of the field that failed.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for max=100.
func (e *ValidationError) Param() string { return e.param }

// Value returns the rejected value.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the failed fields.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i := range ve.errors {
		messages[i] = ve.errors[i].message
	}
	return strings.Join(messages, "; ")
}

// APIError mirrors models.APIError without importing models.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError converts the failures to a VALIDATION_ERROR.
func (ve *RequestValidationError) ToAPIError() *APIError {
	switch len(ve.errors) {
	case 0:
		return &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	case 1:
		e := ve.errors[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: e.message,
			Details: map[string]interface{}{"field": e.field, "tag": e.tag},
		}
	}

	fields := make([]map[string]interface{}, len(ve.errors))
	for i, e := range ve.errors {
		fields[i] = map[string]interface{}{"field": e.field, "tag": e.tag, "message": e.message}
	}
	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: ve.Error(),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("devicecode", isDeviceCode)
	})
	return validate
}

// jsonFieldName reports fields by their JSON name.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// isDeviceCode accepts printable codes without whitespace.
func isDeviceCode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}

// ValidateStruct validates s. It returns nil when s is valid.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []ValidationError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	out := make([]ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = ValidationError{
			field:   fieldPath(fe),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: out}
}

// fieldPath drops the top-level struct name: "employees[3].device_code".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

var simpleMessages = map[string]string{
	"required":   "%s is required",
	"devicecode": "%s must be a device code without spaces",
	"email":      "%s must be a valid email address",
}

var paramMessages = map[string]string{
	"oneof":   "%s must be one of: %s",
	"gte":     "%s must be greater than or equal to %s",
	"lte":     "%s must be less than or equal to %s",
	"gt":      "%s must be greater than %s",
	"lt":      "%s must be less than %s",
	"gtfield": "%s must be after %s",
}

func translateError(fe validator.FieldError) string {
	field := fieldPath(fe)
	if tmpl, ok := simpleMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := paramMessages[fe.Tag()]; ok {
		param := fe.Param()
		if strings.HasSuffix(fe.Tag(), "field") {
			param = strings.ToLower(param)
		}
		return fmt.Sprintf(tmpl, field, param)
	}

	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Map:
		unit = " items"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, fe.Param(), unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
