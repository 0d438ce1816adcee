package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittoacl/pkg/identity"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags cover the declarative rules (go-playground/validator); rules
// that span fields or need parsing are checked afterwards.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if _, err := cfg.ACL.UmaskBits(); err != nil {
		return fmt.Errorf("acl: %w", err)
	}

	// Overlapping ranges are rejected by the namespace constructor
	if _, err := identity.NewNamespace(cfg.Identity.UIDMap, cfg.Identity.GIDMap); err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	if cfg.Metrics.Textfile != "" && !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics: textfile is set but metrics are disabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
