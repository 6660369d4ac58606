package sensor

import (
	"regexp"
	"strings"
)

var (
	slugPattern = regexp.MustCompile(`[^0-9a-z]+`)
	camelCase   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// quantityTokens are split off a preceding letter or digit so that
// "acpower" becomes "ac_power".
var quantityTokens = []string{"power", "energy", "voltage", "current", "temperature", "frequency", "capacity"}

// Slugify turns an API field name into a snake_case key.
func Slugify(value string) string {
	if value == "" {
		return ""
	}

	s := camelCase.ReplaceAllString(value, "${1}_${2}")
	for _, token := range quantityTokens {
		s = splitToken(s, token)
	}

	s = slugPattern.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}

func splitToken(s, token string) string {
	lowered := lowerASCII(s)
	if !strings.Contains(lowered, token) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(lowered[i:], token) {
			if i > 0 && isAlnum(s[i-1]) {
				b.WriteByte('_')
			}
			b.WriteString(token)
			i += len(token)
			continue
		}
		b.WriteByte(s[i])
		i++
	}

	return b.String()
}

// TitleFromSlug turns "pv1_voltage" into "Pv1 Voltage".
func TitleFromSlug(slug string) string {
	s := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(slug, "_", " "), "  ", " "))

	b := []byte(s)
	prevLetter := false
	for i, c := range b {
		isLetter := isUpper(c) || isLower(c)
		switch {
		case isLetter && prevLetter:
			b[i] = toLower(c)
		case isLetter:
			b[i] = toUpper(c)
		}
		prevLetter = isLetter
	}

	return string(b)
}

// ExpandKeyVariants returns likely spellings of an API key, the key itself
// first.
func ExpandKeyVariants(key string) []string {
	if key == "" {
		return nil
	}

	slug := Slugify(key)
	if slug == "" {
		return []string{key}
	}

	parts := strings.Split(slug, "_")
	camel := parts[0]
	pascal := ""
	for i, part := range parts {
		if i > 0 {
			camel += capitalize(part)
		}
		pascal += capitalize(part)
	}

	candidates := []string{key, strings.ReplaceAll(slug, "_", ""), slug, camel, pascal, strings.ToLower(key)}
	variants := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true
		variants = append(variants, candidate)
	}

	return variants
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	b := []byte(strings.ToLower(s))
	b[0] = toUpper(b[0])
	return string(b)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		b[i] = toLower(c)
	}

	return string(b)
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool { return isUpper(c) || isLower(c) || isDigit(c) }

func toLower(c byte) byte {
	if isUpper(c) {
		return c + ('a' - 'A')
	}
	return c
}

func toUpper(c byte) byte {
	if isLower(c) {
		return c - ('a' - 'A')
	}
	return c
}
