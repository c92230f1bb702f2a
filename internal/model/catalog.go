package model

import (
	"encoding/json"
	"time"
)

// BlobType distinguishes the raw payloads cached per catalog id.
type BlobType string

const (
	BlobResearcher BlobType = "researcher"
	BlobWorks      BlobType = "works"
)

// CachedBlob holds a raw upstream payload keyed by (catalog id, type).
// At most one row exists per key; writes replace.
type CachedBlob struct {
	CatalogID string          `json:"catalog_id"`
	DataType  BlobType        `json:"data_type"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Topic is a research topic attached to a researcher, flattened from the
// catalog's nested subfield/field/domain hierarchy.
type Topic struct {
	CatalogID   string `json:"catalog_id"`
	TopicID     string `json:"topic_id"`
	DisplayName string `json:"display_name"`
	Count       int    `json:"count"`
	Subfield    string `json:"subfield,omitempty"`
	Field       string `json:"field,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// Affiliation is an institutional affiliation with its active year range.
type Affiliation struct {
	CatalogID       string `json:"catalog_id"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
	InstitutionType string `json:"institution_type,omitempty"`
	CountryCode     string `json:"country_code,omitempty"`
	StartYear       int    `json:"start_year"`
	EndYear         int    `json:"end_year"`
}

// Publication is a denormalized work row rendered on portfolio pages.
type Publication struct {
	CatalogID    string   `json:"catalog_id"`
	WorkID       string   `json:"work_id"`
	Title        string   `json:"title"`
	Year         int      `json:"year"`
	CitedByCount int      `json:"cited_by_count"`
	DOI          string   `json:"doi,omitempty"`
	OpenAccess   bool     `json:"open_access"`
	Venue        string   `json:"venue,omitempty"`
	TypeCode     string   `json:"type_code,omitempty"`
	IsReview     bool     `json:"is_review"`
	Authors      string   `json:"authors,omitempty"`
	Topics       []string `json:"topics,omitempty"`
}
