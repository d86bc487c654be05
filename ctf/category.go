package ctf

import "strings"

// Canonical category spellings keyed by common platform variants.
var categoryAliases = map[string]string{
	"binary exploitation": "pwn",
	"binary-exploitation": "pwn",
	"exploitation":        "pwn",
	"pwnable":             "pwn",
	"pwnables":            "pwn",
	"reverse engineering": "rev",
	"reverse-engineering": "rev",
	"reversing":           "rev",
	"reverse":             "rev",
	"cryptography":        "crypto",
	"forensic":            "forensics",
	"steganography":       "stego",
	"miscellaneous":       "misc",
	"osint":               "osint",
	"web exploitation":    "web",
}

// NormalizeCategory maps a category name onto its canonical short form:
// lowercased, trimmed, and folded through known platform spellings
// ("Binary Exploitation" becomes "pwn"). Unknown categories pass through
// lowercased. Category filters and enrichment share this mapping so a
// filter matches the same challenges before and after enrichment.
func NormalizeCategory(raw string) string {
	cat := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := categoryAliases[cat]; ok {
		return canonical
	}
	return cat
}
