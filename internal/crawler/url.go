package crawler

import (
	"net/url"
	"strconv"
)

// BuildSearchURL constructs the directory search URL for a region and page.
// Page 1 omits the page parameter. All values are percent-encoded.
func BuildSearchURL(baseURL, phrase, regionCode string, page int) string {
	q := url.Values{}
	q.Set("search_terms", phrase)
	q.Set("geo_location_terms", regionCode)
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return baseURL + "?" + q.Encode()
}
