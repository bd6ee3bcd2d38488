package domain

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// HTTPURLRegex matches the accepted scheme prefix of plugin repository links.
var HTTPURLRegex = regexp.MustCompile(`^https?://`)

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	// Register custom http(s) url validation
	_ = v.RegisterValidation("http_url", func(fl validator.FieldLevel) bool {
		return HTTPURLRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	return v
}

