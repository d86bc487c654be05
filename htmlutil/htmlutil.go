// Package htmlutil extracts the few HTML fragments adapters need from
// platform pages.
package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

// Pre-compiled patterns for extraction.
var (
	csrfNoncePattern  = regexp.MustCompile(`csrfNonce['"]?\s*:\s*['"]([^'"]+)['"]`)
	nonceInputPattern = regexp.MustCompile(`<input[^>]+name=["']nonce["'][^>]+value=["']([^"']+)["']`)
	titlePattern      = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
)

// CSRFNonce extracts the csrfNonce value CTFd embeds in its page init
// script. Returns "" when absent.
func CSRFNonce(htmlContent string) string {
	if matches := csrfNoncePattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// FormNonce extracts the hidden nonce input from a login form. Returns ""
// when absent.
func FormNonce(htmlContent string) string {
	if matches := nonceInputPattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// Title extracts the page title. Used to label a CTF instance.
func Title(htmlContent string) string {
	if matches := titlePattern.FindStringSubmatch(htmlContent); len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}
