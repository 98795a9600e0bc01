package hisapi

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/his/his/pkg/access"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return access.Role(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

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

// FieldError is a single field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Problem
	}
	return strings.Join(parts, "; ")
}

// ValidateCreate checks a full payload against its create requirements.
func ValidateCreate(v any) error {
	return convert(validatorInstance().Struct(v))
}

// ValidatePatch checks only the fields named by keys (JSON names). Required
// fields that are absent from the patch are not reported.
func ValidatePatch(v any, keys []string) error {
	fields, err := goFieldNames(v, keys)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return &ValidationError{Fields: []FieldError{{Field: "body", Problem: "contains no updatable fields"}}}
	}
	return convert(validatorInstance().StructFiltered(v, func(ns []byte) bool {
		return !fields[topLevelField(ns)]
	}))
}

// CheckKeys reports keys (JSON names) that are not fields of v.
func CheckKeys(v any, keys []string) error {
	_, err := goFieldNames(v, keys)
	return err
}

// PatchKeys returns the JSON keys a payload would send as a partial update:
// every non-empty field except the server-owned metadata.
func PatchKeys(v any) ([]string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	return PresentKeys(data)
}

// PresentKeys returns the top-level keys of a JSON object, minus Meta keys,
// sorted.
func PresentKeys(data []byte) ([]string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if MetaKeys[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// goFieldNames maps JSON keys to the Go field names of v's struct type.
// Unknown keys are a validation failure.
func goFieldNames(v any, keys []string) (map[string]bool, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("validate: expected struct, got %T", v)
	}

	byJSON := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			continue
		}
		byJSON[jsonFieldName(f)] = f.Name
	}

	out := make(map[string]bool, len(keys))
	var unknown []FieldError
	for _, k := range keys {
		name, ok := byJSON[k]
		if !ok {
			unknown = append(unknown, FieldError{Field: k, Problem: "is not a known field"})
			continue
		}
		out[name] = true
	}
	if len(unknown) > 0 {
		return nil, &ValidationError{Fields: unknown}
	}
	return out, nil
}

// topLevelField extracts "Items" from "Invoice.Items[0].Description".
func topLevelField(ns []byte) string {
	s := string(ns)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, ".["); i >= 0 {
		s = s[:i]
	}
	return s
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Problem: problem(fe)})
	}
	return out
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "datetime":
		return "must match the format " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "role":
		return "must be a known role"
	case "slug":
		return "must contain only lowercase letters, digits and hyphens"
	case "min":
		if isLengthKind(fe.Kind()) {
			return "must have at least " + fe.Param() + " characters or items"
		}
		return "must be at least " + fe.Param()
	case "max":
		if isLengthKind(fe.Kind()) {
			return "must have at most " + fe.Param() + " characters or items"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be " + fe.Param() + " or more"
	case "lte":
		return "must be " + fe.Param() + " or less"
	}
	return "failed the " + fe.Tag() + " check"
}

func isLengthKind(k reflect.Kind) bool {
	return k == reflect.String || k == reflect.Slice || k == reflect.Map || k == reflect.Array
}
