package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fieldUnknown is the placeholder stored when a listing field is absent.
const fieldUnknown = "N/A"

// GoqueryExtractor parses directory result pages with goquery. Ad cards are
// skipped and listings without a name are dropped.
type GoqueryExtractor struct{}

// NewExtractor returns the goquery-backed extractor.
func NewExtractor() *GoqueryExtractor {
	return &GoqueryExtractor{}
}

// Extract parses rendered HTML into listings plus a has-next-page flag.
// Malformed or partial content yields no listings rather than an error.
func (e *GoqueryExtractor) Extract(html, regionCode string) ([]Listing, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	var listings []Listing
	doc.Find("div.result").Each(func(_ int, card *goquery.Selection) {
		if card.HasClass("ad") || card.HasClass("advertisement") {
			return
		}
		name := strings.TrimSpace(card.Find("a.business-name").First().Text())
		if name == "" {
			return
		}
		listings = append(listings, Listing{
			Name:       name,
			Website:    websiteOf(card),
			Phone:      textOrUnknown(card.Find("div.phones").First()),
			Categories: categoriesOf(card),
			Region:     regionCode,
			Relocated:  card.Find("span.MOVED").Length() > 0,
		})
	})

	hasNext := false
	doc.Find("div.pagination a.next").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if _, ok := a.Attr("href"); ok {
			hasNext = true
			return false
		}
		return true
	})

	return listings, hasNext
}

func websiteOf(card *goquery.Selection) string {
	if href, ok := card.Find("a.track-visit-website").First().Attr("href"); ok && href != "" {
		return href
	}
	return fieldUnknown
}

func categoriesOf(card *goquery.Selection) string {
	block := card.Find("div.categories").First()
	links := block.Find("a")
	if links.Length() > 0 {
		parts := make([]string, 0, links.Length())
		links.Each(func(_ int, a *goquery.Selection) {
			if txt := strings.TrimSpace(a.Text()); txt != "" {
				parts = append(parts, txt)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return textOrUnknown(block)
}

func textOrUnknown(sel *goquery.Selection) string {
	if txt := strings.TrimSpace(sel.Text()); txt != "" {
		return txt
	}
	return fieldUnknown
}
