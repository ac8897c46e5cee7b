// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Person is one row of the input roster.
type Person struct {
	// ID is a filesystem-safe identifier used as the page directory name.
	ID string `json:"id" yaml:"id"`

	// RawName is the name exactly as it appeared in the roster.
	RawName string `json:"raw_name" yaml:"raw_name"`

	// Name is the normalized form ("Last, First" folded to "First Last").
	Name string `json:"name" yaml:"name"`
}

// ScrapeStatus describes the outcome of scraping one person.
type ScrapeStatus string

const (
	ScrapeOK           ScrapeStatus = "ok"
	ScrapeSearchFailed ScrapeStatus = "search_failed"
	ScrapeHTTPFailed   ScrapeStatus = "http_failed"
)

// ScrapeMeta records how a person's page was located. It is written as
// meta.json next to the saved HTML so failed lookups can be audited and
// retried without re-reading the roster.
type ScrapeMeta struct {
	RawName         string       `json:"raw_name"`
	NormalizedName  string       `json:"normalized_name"`
	AttemptedTitles []string     `json:"attempted_titles"`
	RequestedURL    string       `json:"requested_url,omitempty"`
	FinalURL        string       `json:"final_url,omitempty"`
	Status          ScrapeStatus `json:"status"`
	HTTPStatus      int          `json:"http_status,omitempty"`
	Notes           []string     `json:"notes,omitempty"`
}
