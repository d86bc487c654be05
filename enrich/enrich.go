// Package enrich derives secondary challenge attributes without network I/O.
package enrich

import (
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
)

// Keyword heuristics for tag inference, matched case-insensitively against
// name and description.
var tagKeywords = map[string]string{
	"sql injection":   "sqli",
	"sqli":            "sqli",
	"xss":             "xss",
	"cross-site":      "xss",
	"ssrf":            "ssrf",
	"xxe":             "xxe",
	"jwt":             "jwt",
	"rsa":             "rsa",
	"aes":             "aes",
	"xor":             "xor",
	"buffer overflow": "overflow",
	"rop":             "rop",
	"format string":   "format-string",
	"heap":            "heap",
	"shellcode":       "shellcode",
	"pcap":            "pcap",
	"wireshark":       "pcap",
	"docker":          "docker",
	"kernel":          "kernel",
	"race condition":  "race",
	"deserializ":      "deserialization",
}

// Challenge returns a copy of c with normalized categories and inferred
// tags. It performs no network I/O and is idempotent: enriching an already
// enriched challenge yields an identical result.
func Challenge(c ctf.Challenge) ctf.Challenge {
	out := c
	out.Categories = normalizeCategories(c.Categories)
	out.Tags = inferTags(c)
	return out
}

// Challenges enriches every element of a list, preserving order. The input
// slice is not mutated.
func Challenges(challenges []ctf.Challenge) []ctf.Challenge {
	out := make([]ctf.Challenge, len(challenges))
	for i, c := range challenges {
		out[i] = Challenge(c)
	}
	return out
}

func normalizeCategories(categories []string) []string {
	if len(categories) == 0 {
		return categories
	}
	out := make([]string, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for _, raw := range categories {
		cat := ctf.NormalizeCategory(raw)
		if cat == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, cat)
	}
	return out
}

func inferTags(c ctf.Challenge) []string {
	haystack := strings.ToLower(c.Name + " " + c.Description)

	set := make(map[string]bool, len(c.Tags))
	out := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		if !set[t] {
			set[t] = true
			out = append(out, t)
		}
	}

	var inferred []string
	for keyword, tag := range tagKeywords {
		if set[tag] {
			continue
		}
		if strings.Contains(haystack, keyword) {
			set[tag] = true
			inferred = append(inferred, tag)
		}
	}
	// Map iteration order is random; sort inferred tags so enrichment is
	// deterministic and idempotent.
	sort.Strings(inferred)
	return append(out, inferred...)
}
