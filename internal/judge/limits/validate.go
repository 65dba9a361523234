package limits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Violation describes one rejected field.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ConfigError is returned when a configuration cannot be saved.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Rule)
	}
	return "invalid language configuration: " + strings.Join(parts, ", ")
}

// ValidateLanguage checks a language config before it is saved.
func ValidateLanguage(cfg LanguageConfig) error {
	cfg.Code = strings.TrimSpace(cfg.Code)
	cfg.Name = strings.TrimSpace(cfg.Name)
	return toConfigError(validate.Struct(cfg))
}

// ValidateOverride checks a per-problem override before it is saved.
func ValidateOverride(o ProblemLanguageOverride) error {
	return toConfigError(validate.Struct(o))
}

func toConfigError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ConfigError{Violations: make([]Violation, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Violations = append(out.Violations, Violation{Field: fe.Field(), Rule: rule})
	}
	return out
}
