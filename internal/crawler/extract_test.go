package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `
<html><body>
<div class="search-results">
  <div class="result">
    <a class="business-name">Crystal Pools</a>
    <a class="track-visit-website" href="https://crystalpools.example.com">Website</a>
    <div class="phones">(305) 555-0101</div>
    <div class="categories"><a>Pool Cleaning</a><a>Pool Maintenance</a></div>
  </div>
  <div class="result ad">
    <a class="business-name">Sponsored Pools</a>
  </div>
  <div class="result">
    <a class="business-name">Blue Lagoon Services</a>
    <div class="categories">Swimming Pool Contractors</div>
    <span class="MOVED">moved</span>
  </div>
  <div class="result">
    <div class="phones">(305) 555-0404</div>
  </div>
</div>
<div class="pagination"><a class="next" href="/search?page=2">Next</a></div>
</body></html>`

func TestExtractParsesListings(t *testing.T) {
	t.Parallel()

	listings, hasNext := NewExtractor().Extract(samplePage, "FL")
	require.True(t, hasNext)
	require.Len(t, listings, 2, "ad cards and nameless cards are dropped")

	first := listings[0]
	require.Equal(t, "Crystal Pools", first.Name)
	require.Equal(t, "https://crystalpools.example.com", first.Website)
	require.Equal(t, "(305) 555-0101", first.Phone)
	require.Equal(t, "Pool Cleaning, Pool Maintenance", first.Categories)
	require.Equal(t, "FL", first.Region)
	require.False(t, first.Relocated)

	second := listings[1]
	require.Equal(t, "Blue Lagoon Services", second.Name)
	require.Equal(t, "N/A", second.Website)
	require.Equal(t, "N/A", second.Phone)
	require.Equal(t, "Swimming Pool Contractors", second.Categories)
	require.True(t, second.Relocated)
}

func TestExtractNoPaginationMeansNoNext(t *testing.T) {
	t.Parallel()

	_, hasNext := NewExtractor().Extract(`<div class="result"><a class="business-name">X</a></div>`, "CA")
	require.False(t, hasNext)
}

func TestExtractNextLinkWithoutHrefIgnored(t *testing.T) {
	t.Parallel()

	_, hasNext := NewExtractor().Extract(`<div class="pagination"><a class="next">Next</a></div>`, "CA")
	require.False(t, hasNext)
}

func TestExtractMalformedContentReturnsEmpty(t *testing.T) {
	t.Parallel()

	listings, hasNext := NewExtractor().Extract("<<<not html", "CA")
	require.Empty(t, listings)
	require.False(t, hasNext)
}
