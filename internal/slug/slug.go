// Package slug validates and derives the URL-safe handles shared by all accounts.
package slug

import (
	"fmt"
	"regexp"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/joydrop/backend/internal/apperr"
)

// MaxLength is the longest accepted slug.
const MaxLength = 30

// SuffixLength is the number of random characters appended on collision.
const SuffixLength = 4

// SuffixAlphabet keeps generated suffixes inside the slug alphabet.
const SuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	slugRegex    = regexp.MustCompile(`^[a-z0-9-]+$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize lowercases and trims a candidate. Slugs are case-insensitive.
func Normalize(candidate string) string {
	return strings.ToLower(strings.TrimSpace(candidate))
}

// Validate checks the normalized form of candidate and returns it.
func Validate(candidate string) (string, error) {
	s := Normalize(candidate)
	if s == "" || len(s) > MaxLength || !slugRegex.MatchString(s) ||
		strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return "", apperr.ErrInvalidFormat
	}
	return s, nil
}

// FromName derives an organization slug from a display name: lowercase,
// runs of other characters become a single hyphen, cut to MaxLength.
func FromName(name string) string {
	return Derive(name, "org")
}

// Derive is FromName with fallback used when nothing slug-safe remains.
func Derive(name, fallback string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}

// WithSuffix appends a random "-xxxx" to base, shortening base so the result
// still fits MaxLength.
func WithSuffix(base string) (string, error) {
	suffix, err := nanoid.Generate(SuffixAlphabet, SuffixLength)
	if err != nil {
		return "", fmt.Errorf("slug suffix: %w", err)
	}
	keep := MaxLength - SuffixLength - 1
	if len(base) > keep {
		base = strings.TrimRight(base[:keep], "-")
	}
	if base == "" {
		return suffix, nil
	}
	return base + "-" + suffix, nil
}
