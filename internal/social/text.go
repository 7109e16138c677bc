package social

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	humanNumberRE = regexp.MustCompile(`^([\d,.]+)\s*([kKmM]il|mill[oó]n|mills?|[kKMGTP])?$`)
)

var multipliers = map[string]float64{
	"k":      1e3,
	"m":      1e6,
	"g":      1e9,
	"t":      1e12,
	"p":      1e15,
	"mil":    1e3,
	"kil":    1e3,
	"millón": 1e6,
	"millon": 1e6,
	"mill":   1e6,
	"mills":  1e6,
}

// CleanText collapses runs of whitespace, newlines included, into single spaces.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// ParseHumanNumber reads counters as sites display them: "4", "1.5k", "2M",
// "1,6 mil", "1 millón". Unparseable input yields 0.
func ParseHumanNumber(s string) int64 {
	text := CleanText(s)
	m := humanNumberRE.FindStringSubmatch(text)
	if m == nil {
		return int64(parseLoose(text))
	}
	mult := 1.0
	if m[2] != "" {
		if v, ok := multipliers[strings.ToLower(m[2])]; ok {
			mult = v
		}
	}
	return int64(math.Round(parseLoose(m[1]) * mult))
}

// parseLoose tries the digit as written, then with a decimal comma, then with
// thousands separators removed.
func parseLoose(s string) float64 {
	candidates := []string{
		s,
		strings.ReplaceAll(s, ",", "."),
		strings.ReplaceAll(s, ",", ""),
		strings.NewReplacer(",", "", ".", "").Replace(s),
	}
	for _, c := range candidates {
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			return v
		}
	}
	return 0
}

var followerSuffixes = map[byte]float64{'K': 1e3, 'M': 1e6, 'B': 1e9}

// ParseFollowerCount reads English counters such as "12.5K", "3M",
// "1.2B" or "48,213". Unparseable input yields 0.
func ParseFollowerCount(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	if mult, ok := followerSuffixes[s[len(s)-1]]; ok {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s[:len(s)-1], ",", ""), 64)
		if err != nil {
			return 0
		}
		return int64(math.Round(v * mult))
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
