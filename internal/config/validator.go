package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
)

// Audit output schemes.
const (
	AuditStderr       = "stderr"
	AuditStdout       = "stdout"
	AuditFilePrefix   = "file://"
	AuditSQLitePrefix = "sqlite://"
)

// RegisterCustomValidators registers the hrgate validation tags.
func RegisterCustomValidators(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"audit_output": validateAuditOutput,
		"key_hash":     validateKeyHash,
		"duration":     validateDuration,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateAuditOutput accepts stderr, stdout, file://<absolute-path> and
// sqlite://<absolute-path>.
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	switch output {
	case AuditStderr, AuditStdout:
		return true
	}
	for _, prefix := range []string{AuditFilePrefix, AuditSQLitePrefix} {
		if path, ok := strings.CutPrefix(output, prefix); ok {
			return path != "" && filepath.IsAbs(path)
		}
	}
	return false
}

func validateKeyHash(fl validator.FieldLevel) bool {
	return auth.DetectHashType(fl.Field().String()) != "unknown"
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Server.Transport == TransportStdio && c.Audit.Output == AuditStdout {
		return errors.New("audit.output: stdout is the JSON-RPC channel under the stdio transport; use stderr, file:// or sqlite://")
	}
	if err := c.validateIdentityReferences(); err != nil {
		return err
	}
	if c.Server.Transport == TransportHTTP && len(c.Auth.APIKeys) == 0 && !c.DevMode {
		return errors.New("auth.api_keys: the http transport requires at least one API key (or dev_mode)")
	}
	return nil
}

// validateIdentityReferences ensures every API key names a configured identity.
func (c *Config) validateIdentityReferences() error {
	known := make(map[string]struct{}, len(c.Auth.Identities))
	for _, identity := range c.Auth.Identities {
		if _, dup := known[identity.ID]; dup {
			return fmt.Errorf("auth.identities: duplicate id %s", identity.ID)
		}
		known[identity.ID] = struct{}{}
	}
	for i, apiKey := range c.Auth.APIKeys {
		if _, ok := known[apiKey.IdentityID]; !ok {
			return fmt.Errorf("auth.api_keys[%d]: references unknown identity_id: %s", i, apiKey.IdentityID)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to readable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
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
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration such as 30s or 5m", field)
	case "key_hash":
		return fmt.Sprintf("%s must be an argon2id hash or sha256:<hex>", field)
	case "audit_output":
		return fmt.Sprintf("%s must be stderr, stdout, file://<absolute-path> or sqlite://<absolute-path>", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
