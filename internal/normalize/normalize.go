// Package normalize transforms raw catalog records into the relational
// shapes rendered on portfolio pages. All functions are pure.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/scholar-sites/sitesync/internal/catalog"
	"github.com/scholar-sites/sitesync/internal/model"
)

// UntitledPlaceholder replaces titles that normalize to nothing.
const UntitledPlaceholder = "Untitled"

// maxPublicationTopics caps the denormalized topic names per publication.
const maxPublicationTopics = 5

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	entityRe     = regexp.MustCompile(`&#?[a-zA-Z0-9]+;`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&amp;", "&",
)

// CleanTitle strips markup and entities from an upstream title and
// collapses whitespace. Empty input, or input that is nothing but markup,
// becomes the "Untitled" placeholder.
func CleanTitle(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	s = entityRe.ReplaceAllString(s, "")
	s = norm.NFC.String(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return UntitledPlaceholder
	}
	return s
}

// TypeCode extracts the type code from the catalog's URL-like type field
// and reports whether it marks a review.
func TypeCode(typeURI string) (string, bool) {
	code := typeURI
	if i := strings.LastIndex(typeURI, "/"); i >= 0 {
		code = typeURI[i+1:]
	}
	return code, code == "review"
}

// YearRange returns the first and last year of an unsorted list. A single
// year yields start == end. An empty list yields zeros.
func YearRange(years []int) (start, end int) {
	if len(years) == 0 {
		return 0, 0
	}
	sorted := make([]int, len(years))
	copy(sorted, years)
	sort.Ints(sorted)
	return sorted[0], sorted[len(sorted)-1]
}

// Topics flattens an entity's nested topics into rows keyed by catalog id.
func Topics(catalogID string, e *catalog.Entity) []model.Topic {
	rows := make([]model.Topic, 0, len(e.Topics))
	for _, t := range e.Topics {
		rows = append(rows, model.Topic{
			CatalogID:   catalogID,
			TopicID:     t.ID,
			DisplayName: t.DisplayName,
			Count:       t.Count,
			Subfield:    t.Subfield.DisplayName,
			Field:       t.Field.DisplayName,
			Domain:      t.Domain.DisplayName,
		})
	}
	return rows
}

// Affiliations flattens an entity's nested affiliations into rows with a
// computed active year range.
func Affiliations(catalogID string, e *catalog.Entity) []model.Affiliation {
	rows := make([]model.Affiliation, 0, len(e.Affiliations))
	for _, a := range e.Affiliations {
		start, end := YearRange(a.Years)
		rows = append(rows, model.Affiliation{
			CatalogID:       catalogID,
			InstitutionID:   a.Institution.ID,
			InstitutionName: a.Institution.DisplayName,
			InstitutionType: a.Institution.Type,
			CountryCode:     a.Institution.CountryCode,
			StartYear:       start,
			EndYear:         end,
		})
	}
	return rows
}

// Publications builds denormalized publication rows: cleaned title, type
// code with review flag, comma-joined author names, and a capped list of
// topic display names.
func Publications(catalogID string, works []catalog.Work) []model.Publication {
	rows := make([]model.Publication, 0, len(works))
	for _, w := range works {
		code, isReview := TypeCode(w.Type)

		authors := make([]string, 0, len(w.Authorships))
		for _, a := range w.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}

		topics := make([]string, 0, maxPublicationTopics)
		for _, t := range w.Topics {
			if len(topics) == maxPublicationTopics {
				break
			}
			if t.DisplayName != "" {
				topics = append(topics, t.DisplayName)
			}
		}

		rows = append(rows, model.Publication{
			CatalogID:    catalogID,
			WorkID:       w.ID,
			Title:        CleanTitle(w.Title),
			Year:         w.PublicationYear,
			CitedByCount: w.CitedByCount,
			DOI:          w.DOI,
			OpenAccess:   w.OpenAccess.IsOA,
			Venue:        w.PrimaryLocation.Source.DisplayName,
			TypeCode:     code,
			IsReview:     isReview,
			Authors:      strings.Join(authors, ", "),
			Topics:       topics,
		})
	}
	return rows
}
