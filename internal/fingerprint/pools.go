package fingerprint

// DefaultPools returns the built-in identity value pools. The mix of Chrome,
// Safari, and Firefox signatures across Windows, macOS, and Linux keeps any
// single signature from dominating a crawl.
func DefaultPools() Pools {
	return Pools{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		},
		Viewports: []Viewport{
			{Width: 1920, Height: 1080},
			{Width: 1366, Height: 768},
			{Width: 1536, Height: 864},
			{Width: 1440, Height: 900},
			{Width: 1280, Height: 720},
		},
		Timezones: []string{
			"America/New_York",
			"America/Chicago",
			"America/Denver",
			"America/Los_Angeles",
			"America/Phoenix",
		},
		Locales:      []string{"en-US", "en-GB", "en-CA"},
		PixelRatios:  []float64{1, 1.25, 1.5, 2},
		ColorSchemes: []string{"light", "dark", "no-preference"},
	}
}
