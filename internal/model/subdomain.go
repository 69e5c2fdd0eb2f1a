package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	subdomainSeparator       = '-'
	subdomainBaseMaxRunes    = 30
	subdomainMaxRunes        = 63
	subdomainIDSuffixLength  = 8
	subdomainFallbackBase    = "site"
	subdomainTimeSuffixRunes = 6

	arabicLetterFirst = 'ء'
	arabicLetterLast  = 'ي'
	arabicTatweel     = 'ـ'
)

// ErrInvalidSubdomain indicates a requested subdomain has no usable characters.
var ErrInvalidSubdomain = errors.New("invalid_subdomain")

// GenerateSubdomain derives a slug from the project name and appends a suffix taken from the project id.
func GenerateSubdomain(projectName string, projectID string) string {
	base := sanitizeSubdomain(projectName, subdomainBaseMaxRunes)
	if base == "" {
		base = subdomainFallbackBase
	}
	suffix := projectIDSuffix(projectID)
	if suffix == "" {
		return base
	}
	return base + string(subdomainSeparator) + suffix
}

// NormalizeSubdomain cleans a caller-chosen subdomain without adding any suffix.
func NormalizeSubdomain(requested string) (string, error) {
	normalized := sanitizeSubdomain(requested, subdomainMaxRunes)
	if normalized == "" {
		return "", ErrInvalidSubdomain
	}
	return normalized, nil
}

// WithCollisionSuffix appends a short time-derived suffix so the result differs from a taken subdomain.
func WithCollisionSuffix(subdomain string, moment time.Time) string {
	encoded := strconv.FormatInt(moment.UnixNano()/int64(time.Microsecond), 36)
	if len(encoded) > subdomainTimeSuffixRunes {
		encoded = encoded[len(encoded)-subdomainTimeSuffixRunes:]
	}
	baseBudget := subdomainMaxRunes - len(encoded) - 1
	base := strings.TrimRight(string(truncateRuneSlice([]rune(subdomain), baseBudget)), string(subdomainSeparator))
	if base == "" {
		base = subdomainFallbackBase
	}
	return base + string(subdomainSeparator) + encoded
}

// IsSubdomainRune reports whether a rune may appear in a subdomain.
func IsSubdomainRune(value rune) bool {
	return isSlugRune(value) || value == subdomainSeparator
}

func sanitizeSubdomain(raw string, maxRunes int) string {
	folded, _, foldErr := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), strings.ToLower(raw))
	if foldErr != nil {
		folded = strings.ToLower(raw)
	}

	var builder strings.Builder
	pendingSeparator := false
	for _, value := range folded {
		if isSlugRune(value) {
			if pendingSeparator && builder.Len() > 0 {
				builder.WriteRune(subdomainSeparator)
			}
			pendingSeparator = false
			builder.WriteRune(value)
			continue
		}
		pendingSeparator = true
	}

	truncated := truncateRuneSlice([]rune(builder.String()), maxRunes)
	return strings.Trim(string(truncated), string(subdomainSeparator))
}

func isSlugRune(value rune) bool {
	switch {
	case value >= 'a' && value <= 'z':
		return true
	case value >= '0' && value <= '9':
		return true
	case value >= arabicLetterFirst && value <= arabicLetterLast && value != arabicTatweel:
		return true
	default:
		return false
	}
}

func projectIDSuffix(projectID string) string {
	var builder strings.Builder
	for _, value := range strings.ToLower(projectID) {
		if (value >= 'a' && value <= 'z') || (value >= '0' && value <= '9') {
			builder.WriteRune(value)
			if builder.Len() == subdomainIDSuffixLength {
				break
			}
		}
	}
	return builder.String()
}

func truncateRuneSlice(values []rune, max int) []rune {
	if max < 0 {
		return nil
	}
	if len(values) <= max {
		return values
	}
	return values[:max]
}
