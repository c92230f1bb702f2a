package catalog

import "encoding/json"

// Entity is a single researcher record from the catalog API.
type Entity struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	WorksCount   int           `json:"works_count"`
	CitedByCount int           `json:"cited_by_count"`
	Affiliations []Affiliation `json:"affiliations"`
	Topics       []Topic       `json:"topics"`

	// Raw is the upstream response body, kept for blob caching.
	Raw json.RawMessage `json:"-"`
}

// Affiliation is a nested institution record with the years it was active.
type Affiliation struct {
	Institution Institution `json:"institution"`
	Years       []int       `json:"years"`
}

// Institution identifies the affiliated organization.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	CountryCode string `json:"country_code"`
}

// Topic is a nested research topic with its classification hierarchy.
type Topic struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Count       int      `json:"count"`
	Subfield    Labelled `json:"subfield"`
	Field       Labelled `json:"field"`
	Domain      Labelled `json:"domain"`
}

// Labelled is a nested object carrying only a display name we keep.
type Labelled struct {
	DisplayName string `json:"display_name"`
}

// Work is a single publication record.
type Work struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	PublicationYear int             `json:"publication_year"`
	CitedByCount    int             `json:"cited_by_count"`
	DOI             string          `json:"doi"`
	Type            string          `json:"type"`
	OpenAccess      OpenAccess      `json:"open_access"`
	PrimaryLocation PrimaryLocation `json:"primary_location"`
	Authorships     []Authorship    `json:"authorships"`
	Topics          []Topic         `json:"topics"`
}

// OpenAccess carries the work's open-access flag.
type OpenAccess struct {
	IsOA bool `json:"is_oa"`
}

// PrimaryLocation carries the hosting source (journal, repository).
type PrimaryLocation struct {
	Source Labelled `json:"source"`
}

// Authorship links a work to one of its authors.
type Authorship struct {
	Author Labelled `json:"author"`
}

type worksPage struct {
	Results []Work `json:"results"`
	Meta    struct {
		Count int `json:"count"`
	} `json:"meta"`
}
