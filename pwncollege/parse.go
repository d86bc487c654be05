package pwncollege

import (
	"html"
	"regexp"
	"strings"
)

// Navigation links that share the dojo listing's single-segment href
// shape but are not dojos.
var nonDojoSlugs = map[string]bool{
	"dojos":      true,
	"login":      true,
	"register":   true,
	"logout":     true,
	"challenges": true,
	"scoreboard": true,
	"settings":   true,
	"workspace":  true,
	"desktop":    true,
	"about":      true,
}

var (
	slugHref      = regexp.MustCompile(`href="/([a-zA-Z0-9][a-zA-Z0-9_-]*)/?"`)
	moduleHeading = regexp.MustCompile(`<h1[^>]*>\s*([^<]+?)\s*</h1>`)
	challengeAttr = regexp.MustCompile(`data-challenge-id="(\d+)"\s+data-challenge-name="([^"]*)"(?:\s+data-challenge-description="([^"]*)")?`)
)

type moduleChallenge struct {
	id          string
	name        string
	description string
}

// parseDojoSlugs pulls dojo slugs from the listing page in page order.
// Parsing is scoped to the dojo card section when the page marks one, so
// header navigation does not masquerade as dojos.
func parseDojoSlugs(page string) []string {
	if idx := strings.Index(page, `id="dojos"`); idx >= 0 {
		page = page[idx:]
	}

	var slugs []string
	seen := make(map[string]bool)
	for _, m := range slugHref.FindAllStringSubmatch(page, -1) {
		slug := m[1]
		if nonDojoSlugs[slug] || seen[slug] {
			continue
		}
		seen[slug] = true
		slugs = append(slugs, slug)
	}
	return slugs
}

// parseModuleSlugs pulls the module slugs under one dojo from its page.
func parseModuleSlugs(page, dojo string) []string {
	re := regexp.MustCompile(`href="/` + regexp.QuoteMeta(dojo) + `/([a-zA-Z0-9][a-zA-Z0-9_-]*)/?"`)

	var slugs []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(page, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		slugs = append(slugs, m[1])
	}
	return slugs
}

// parseModule extracts a module page's heading (used as the category) and
// its challenge entries, which the dojo renders as data attributes.
func parseModule(page string) (string, []moduleChallenge) {
	title := ""
	if m := moduleHeading.FindStringSubmatch(page); m != nil {
		title = html.UnescapeString(m[1])
	}

	var entries []moduleChallenge
	for _, m := range challengeAttr.FindAllStringSubmatch(page, -1) {
		entries = append(entries, moduleChallenge{
			id:          m[1],
			name:        html.UnescapeString(m[2]),
			description: html.UnescapeString(m[3]),
		})
	}
	return title, entries
}
