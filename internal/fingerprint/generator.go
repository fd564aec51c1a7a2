// Package fingerprint generates randomized browser identity configurations.
// Each fingerprint is an immutable snapshot of the client-visible attributes
// (signature, viewport, timezone, locale, pixel ratio, color scheme) applied
// to exactly one browsing session and discarded with it.
package fingerprint

import (
	"math/rand"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Fingerprint is one randomized identity configuration. Values are never
// mutated after generation.
type Fingerprint struct {
	UserAgent        string
	Viewport         Viewport
	Timezone         string
	Locale           string
	DevicePixelRatio float64
	ColorScheme      string
}

// Pools holds the value pools a Generator draws from. All slices must be
// non-empty.
type Pools struct {
	UserAgents   []string
	Viewports    []Viewport
	Timezones    []string
	Locales      []string
	PixelRatios  []float64
	ColorSchemes []string
}

// Generator draws fingerprints from fixed pools using an injected random
// source, so tests can seed it for deterministic draws.
type Generator struct {
	pools Pools
	rng   *rand.Rand
}

// NewGenerator builds a Generator over the given pools. Empty pool slices
// fall back to the built-in defaults.
func NewGenerator(pools Pools, rng *rand.Rand) *Generator {
	defaults := DefaultPools()
	if len(pools.UserAgents) == 0 {
		pools.UserAgents = defaults.UserAgents
	}
	if len(pools.Viewports) == 0 {
		pools.Viewports = defaults.Viewports
	}
	if len(pools.Timezones) == 0 {
		pools.Timezones = defaults.Timezones
	}
	if len(pools.Locales) == 0 {
		pools.Locales = defaults.Locales
	}
	if len(pools.PixelRatios) == 0 {
		pools.PixelRatios = defaults.PixelRatios
	}
	if len(pools.ColorSchemes) == 0 {
		pools.ColorSchemes = defaults.ColorSchemes
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Generator{pools: pools, rng: rng}
}

// Generate returns a fresh fingerprint. Every attribute is an independent
// uniform draw from its pool.
func (g *Generator) Generate() Fingerprint {
	return Fingerprint{
		UserAgent:        g.pools.UserAgents[g.rng.Intn(len(g.pools.UserAgents))],
		Viewport:         g.pools.Viewports[g.rng.Intn(len(g.pools.Viewports))],
		Timezone:         g.pools.Timezones[g.rng.Intn(len(g.pools.Timezones))],
		Locale:           g.pools.Locales[g.rng.Intn(len(g.pools.Locales))],
		DevicePixelRatio: g.pools.PixelRatios[g.rng.Intn(len(g.pools.PixelRatios))],
		ColorScheme:      g.pools.ColorSchemes[g.rng.Intn(len(g.pools.ColorSchemes))],
	}
}
