package fetch

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Query describes one (model, storage) search, optionally narrowed to a
// city and a set of device conditions.
type Query struct {
	Model           string
	StorageCapacity string
	Location        string
	Conditions      []string // site condition slugs: new, used, damaged
}

func (q Query) String() string {
	s := q.Model + " " + q.StorageCapacity
	if q.Location != "" {
		s += " @ " + q.Location
	}
	return s
}

// Cohort returns the analysis key this query feeds.
func (q Query) Cohort() (model, storage string) {
	return q.Model, q.StorageCapacity
}

var modelPrefix = regexp.MustCompile(`(?i)iphone\s*`)

// searchURL builds the first-page search URL: category path, optional
// location slug segment, and URL-encoded filter parameters. All
// user-controlled segments are encoded.
func (s *Session) searchURL(q Query) (string, error) {
	if q.Model == "" || q.StorageCapacity == "" {
		return "", fmt.Errorf("query needs both model and storage, got %q/%q", q.Model, q.StorageCapacity)
	}

	modelSlug := modelPrefix.ReplaceAllString(strings.ToLower(q.Model), "")
	modelSlug = strings.Join(strings.Fields(modelSlug), "-")

	params := url.Values{}
	params.Set("search[filter_enum_phonemodel][0]", "iphone-"+modelSlug)
	params.Set("search[filter_enum_builtinmemory_phones][0]", strings.ToLower(q.StorageCapacity))
	for i, cond := range q.Conditions {
		params.Set(fmt.Sprintf("search[filter_enum_state][%d]", i), cond)
	}

	path := s.site.CategoryPath
	if q.Location != "" {
		params.Set("search[dist]", "50")
		locationSlug := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(q.Location))), "-")
		path += url.PathEscape(locationSlug) + "/"
	}
	path += "q-iphone/"

	return s.site.Origin + path + "?" + params.Encode(), nil
}

// pageURL appends the page parameter; page 1 is the bare search URL.
func pageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s&page=%d", base, page)
}
