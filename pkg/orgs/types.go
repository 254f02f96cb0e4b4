package orgs

// Sentinel texts used in placeholder results
const (
	PlaceholderText             = "Unable to fetch data"
	PlaceholderOrganizationName = "Unable to fetch organization details"
	PlaceholderOrganizationID   = "Unable to fetch organization id"
	PlaceholderLicenseID        = "Unable to fetch License details"
)

// Messages returned when a write cannot reach the store
const (
	MsgWriteUnavailable  = "Database service unavailable. Try again later!"
	MsgDeleteUnavailable = "Error while processing your request: database service might be unavailable. Try again later!"
)

// Messages for absent organizations
const (
	MsgNotFound       = "No organization found for the provided id"
	MsgNotFoundWithID = "No organization found for this id: %s"
)

// Change event descriptions
const (
	descCreated = "A new Organization with id %s has been saved to the database."
	descUpdated = "Organization with id %s has been updated"
	descDeleted = "Organization with id %s has been deleted"
)

// Organization is the public record shape
type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
	// Degraded marks a placeholder returned while the store was unreachable
	Degraded bool `json:"degraded,omitempty"`
}

// OrganizationInput carries caller-supplied fields. On update a nil field
// keeps the stored value.
type OrganizationInput struct {
	Name         *string `json:"name,omitempty"`
	ContactName  *string `json:"contactName,omitempty"`
	ContactEmail *string `json:"contactEmail,omitempty"`
	ContactPhone *string `json:"contactPhone,omitempty"`
}

// placeholderOrganization is returned by FindByID when the store is unreachable
func placeholderOrganization(id string) *Organization {
	return &Organization{
		ID:           id,
		Name:         PlaceholderOrganizationName,
		ContactName:  PlaceholderText,
		ContactEmail: PlaceholderText,
		ContactPhone: PlaceholderText,
		Degraded:     true,
	}
}

// placeholderList is returned by FindAll when the store is unreachable. It
// is never empty so that it cannot be mistaken for a store with no records.
func placeholderList() []Organization {
	org := placeholderOrganization(PlaceholderOrganizationID)
	return []Organization{*org}
}
