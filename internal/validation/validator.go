// Package validation checks adapter output and request input with
// go-playground/validator and reports failures as a flat list of issues.
//
// Adapter records carry `validate` struct tags; those tags are the response
// schema. Validate accepts a struct, a pointer to one, or a slice of either.
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

// Issue is a single field-level validation failure.
type Issue struct {
	Path    string      `json:"path"`
	Tag     string      `json:"code"`
	Param   string      `json:"param,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// RequestValidationError is a collection of issues.
type RequestValidationError struct {
	issues []Issue
}

// Issues returns the individual failures.
func (ve *RequestValidationError) Issues() []Issue {
	return ve.issues
}

func (ve *RequestValidationError) Error() string {
	if len(ve.issues) == 0 {
		return "validation failed"
	}

	messages := make([]string, 0, len(ve.issues))
	for _, issue := range ve.issues {
		messages = append(messages, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the shared validator instance. Field names in issues
// come from json tags so they match the response body.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks v against its struct tags. Slices are validated element by
// element with the index prefixed to each issue path.
func Validate(v interface{}) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return &RequestValidationError{issues: []Issue{{Path: "", Tag: "required", Message: "value is required"}}}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return toRequestError(GetValidator().Struct(rv.Interface()), "")
	case reflect.Slice, reflect.Array:
		var issues []Issue
		for i := 0; i < rv.Len(); i++ {
			if err := Validate(rv.Index(i).Interface()); err != nil {
				var re *RequestValidationError
				if !errors.As(err, &re) {
					return err
				}
				for _, issue := range re.issues {
					issue.Path = joinPath(fmt.Sprintf("[%d]", i), issue.Path)
					issues = append(issues, issue)
				}
			}
		}
		if len(issues) > 0 {
			return &RequestValidationError{issues: issues}
		}
		return nil
	default:
		return nil
	}
}

// ValidateVar checks a single input value, reporting issues under field.
func ValidateVar(field string, value interface{}, tag string) error {
	return toRequestError(GetValidator().Var(value, tag), field)
}

func toRequestError(err error, field string) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{issues: []Issue{{Path: field, Tag: "unknown", Message: err.Error()}}}
	}

	issues := make([]Issue, len(validationErrs))
	for i, fe := range validationErrs {
		path := field
		if ns := trimRoot(fe.Namespace()); ns != "" {
			path = joinPath(field, ns)
		}
		issues[i] = Issue{
			Path:    path,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: translateError(fe, path),
		}
	}
	return &RequestValidationError{issues: issues}
}

// trimRoot drops the struct type name from "HentaiInfo.episodes[0].id".
func trimRoot(ns string) string {
	if _, rest, found := strings.Cut(ns, "."); found {
		return rest
	}
	return ""
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	case strings.HasPrefix(path, "["):
		return prefix + path
	default:
		return prefix + "." + path
	}
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"base64":   "%s must be valid base64 encoded",
	"url":      "%s must be a valid URL",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError, field string) string {
	if field == "" {
		field = "value"
	}
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
