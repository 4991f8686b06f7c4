package registry

import (
	"net/url"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Names become route segments, so they are restricted to URL-safe characters.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validateScheme(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

// ValidateService checks a service name and its base address. Config loading
// and Register share it so both accept the same services.
func ValidateService(name, baseAddress string) error {
	return validation.Errors{
		"name": validation.Validate(name,
			validation.Required,
			validation.Length(1, 64),
			validation.Match(serviceNamePattern),
		),
		"url": validation.Validate(baseAddress,
			validation.Required,
			is.URL,
			validation.By(validateScheme),
		),
	}.Filter()
}
