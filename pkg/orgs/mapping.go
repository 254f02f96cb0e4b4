package orgs

import (
	"github.com/orbsec/organization-service/pkg/licensing"
	"github.com/orbsec/organization-service/pkg/storage"
)

// toRecord maps the public shape onto the storage shape field by field
func toRecord(org *Organization) *storage.Record {
	return &storage.Record{
		ID:           org.ID,
		Name:         org.Name,
		ContactName:  org.ContactName,
		ContactEmail: org.ContactEmail,
		ContactPhone: org.ContactPhone,
	}
}

// fromRecord maps the storage shape onto the public shape field by field
func fromRecord(rec *storage.Record) *Organization {
	return &Organization{
		ID:           rec.ID,
		Name:         rec.Name,
		ContactName:  rec.ContactName,
		ContactEmail: rec.ContactEmail,
		ContactPhone: rec.ContactPhone,
	}
}

// newOrganization builds a record from a validated create input
func newOrganization(id string, in OrganizationInput) *Organization {
	return &Organization{
		ID:           id,
		Name:         deref(in.Name),
		ContactName:  deref(in.ContactName),
		ContactEmail: deref(in.ContactEmail),
		ContactPhone: deref(in.ContactPhone),
	}
}

// merge applies the supplied fields of in over org. Identity never changes.
func merge(org *Organization, in OrganizationInput) *Organization {
	merged := *org
	if in.Name != nil {
		merged.Name = *in.Name
	}
	if in.ContactName != nil {
		merged.ContactName = *in.ContactName
	}
	if in.ContactEmail != nil {
		merged.ContactEmail = *in.ContactEmail
	}
	if in.ContactPhone != nil {
		merged.ContactPhone = *in.ContactPhone
	}
	return &merged
}

func placeholderLicenses() []licensing.License {
	return []licensing.License{{
		LicenseID:        PlaceholderLicenseID,
		Description:      PlaceholderText,
		OrganizationID:   PlaceholderText,
		ProductName:      PlaceholderText,
		LicenseType:      PlaceholderText,
		Comment:          PlaceholderText,
		OrganizationName: PlaceholderText,
		ContactName:      PlaceholderText,
		ContactPhone:     PlaceholderText,
		ContactEmail:     PlaceholderText,
		Degraded:         true,
	}}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
