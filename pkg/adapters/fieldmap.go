package adapters

// Logical field names used by tools and the orchestrator.
const (
	FieldTitle    = "title"
	FieldSummary  = "summary"
	FieldStatus   = "status"
	FieldBody     = "body"
	FieldType     = "type"
	FieldChannels = "channels"
	FieldTags     = "tags"
	FieldURL      = "url"
)

// FieldMap translates logical field names into the names an external archive
// uses. Unknown logical names pass through unchanged.
type FieldMap map[string]string

// DefaultFieldMap returns the built-in translation table.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		FieldTitle:    "Name",
		FieldSummary:  "Summary",
		FieldStatus:   "Status",
		FieldBody:     "Body",
		FieldType:     "Type",
		FieldChannels: "Channels",
		FieldTags:     "Tags",
		FieldURL:      "URL",
	}
}

// NewFieldMap merges overrides over the defaults. Empty override values are
// ignored.
func NewFieldMap(overrides map[string]string) FieldMap {
	m := DefaultFieldMap()
	for logical, external := range overrides {
		if external != "" {
			m[logical] = external
		}
	}
	return m
}

// External returns the external name for a logical field.
func (m FieldMap) External(logical string) string {
	if name, ok := m[logical]; ok && name != "" {
		return name
	}
	return logical
}
