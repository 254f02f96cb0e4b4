package orgs

import (
	"net/mail"
	"strings"

	"github.com/orbsec/organization-service/pkg/faults"
)

type field struct {
	name  string
	value *string
}

func fieldsOf(in OrganizationInput) []field {
	return []field{
		{"name", in.Name},
		{"contactName", in.ContactName},
		{"contactEmail", in.ContactEmail},
		{"contactPhone", in.ContactPhone},
	}
}

// ValidateCreate requires every field and a well-formed email address
func ValidateCreate(in OrganizationInput) error {
	for _, f := range fieldsOf(in) {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			return faults.Newf(faults.ValidationFailed, "orgs.validate", "%s is required", f.name)
		}
	}
	return validateEmail(*in.ContactEmail)
}

// ValidateUpdate checks only the supplied fields. A supplied field must not
// be blank.
func ValidateUpdate(in OrganizationInput) error {
	for _, f := range fieldsOf(in) {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return faults.Newf(faults.ValidationFailed, "orgs.validate", "%s must not be empty", f.name)
		}
	}
	if in.ContactEmail != nil {
		return validateEmail(*in.ContactEmail)
	}
	return nil
}

// validateEmail accepts a bare address such as jane@acme.com
func validateEmail(email string) error {
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email || parsed.Name != "" {
		return faults.New(faults.ValidationFailed, "orgs.validate", "invalid email address")
	}
	return nil
}
