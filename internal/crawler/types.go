package crawler

import (
	"time"
)

// PhoneFieldName is the data field whose value feeds deduplication
const PhoneFieldName = "phone"

// ListingRef is a listing discovered on a catalog page, not yet fetched
type ListingRef struct {
	// URL is the absolute listing URL
	URL string
	// SourcePage is the catalog page number the link was found on
	SourcePage int
}

// ListingDetail is the extracted content of one listing page
type ListingDetail struct {
	// SourceURL is the normalized listing URL, the listing's identity
	SourceURL string `json:"url"`
	// Fields maps data field names to extracted values; missing fields are
	// present with empty values so output columns stay aligned
	Fields map[string]string `json:"fields"`
	// Phones are the normalized phone numbers parsed from the phone field
	Phones    []string  `json:"phones"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Phone returns the raw phone field value
func (d *ListingDetail) Phone() string {
	return d.Fields[PhoneFieldName]
}
