package deps

import (
	"regexp"
	"sort"
	"strings"
)

// Signatures are the output fragments that make a scan worthwhile. Matching
// is case-insensitive.
var Signatures = []string{"modulenotfounderror", "importerror", "no module named"}

var (
	noModuleRe   = regexp.MustCompile(`(?i)no module named\s+['"]?([A-Za-z_][A-Za-z0-9_.]*)['"]?`)
	cannotFromRe = regexp.MustCompile(`(?i)cannot import name\s+['"]?[^'"\s]+['"]?\s+from\s+['"]([A-Za-z_][A-Za-z0-9_.]*)['"]`)
)

// HasFailureSignature reports whether output looks like an import failure.
func HasFailureSignature(output string) bool {
	lowered := strings.ToLower(output)
	for _, sig := range Signatures {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return false
}

// Scan returns the top-level module names an import failure complains about.
// Output without a failure signature yields an empty set.
func Scan(output string) map[string]struct{} {
	ret := map[string]struct{}{}
	if !HasFailureSignature(output) {
		return ret
	}
	for _, re := range []*regexp.Regexp{noModuleRe, cannotFromRe} {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			name := topLevel(m[1])
			if name != "" {
				ret[name] = struct{}{}
			}
		}
	}
	return ret
}

func ScanLines(lines []string) map[string]struct{} {
	return Scan(strings.Join(lines, "\n"))
}

func Sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func topLevel(mod string) string {
	mod = strings.Trim(mod, ".")
	if i := strings.IndexByte(mod, '.'); i >= 0 {
		return mod[:i]
	}
	return mod
}
