package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// RegisterCustomValidators registers rpcguard validation rules.
// Must be called before validating RPCGuardConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"duration":     validateDuration,
		"key_strategy": validateKeyStrategy,
		"metric_name":  validateMetricName,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateDuration accepts positive Go durations such as "100ms" or "24h".
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

func validateKeyStrategy(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "ip", "public_key":
		return true
	}
	return false
}

func validateMetricName(fl validator.FieldLevel) bool {
	return metricNameRE.MatchString(fl.Field().String())
}

// Validate validates the RPCGuardConfig using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *RPCGuardConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Events.Enabled && c.Events.Store == "redis" && c.Events.Redis.Addr == "" {
		return errors.New("events.redis.addr is required when events.store is redis")
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, e.Param())
	case "file":
		return fmt.Sprintf("%s must be an existing file", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration such as \"100ms\"", field)
	case "key_strategy":
		return fmt.Sprintf("%s must be 'ip' or 'public_key'", field)
	case "metric_name":
		return fmt.Sprintf("%s must be a valid Prometheus metric name", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
