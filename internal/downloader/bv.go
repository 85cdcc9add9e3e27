package downloader

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var bvRe = regexp.MustCompile(`(BV[0-9A-Za-z]{10,})`)

// extractBV pulls the public BV identifier out of a shareable URL or a
// bare identifier.
func extractBV(raw string) (string, error) {
	if m := bvRe.FindString(raw); m != "" {
		return m, nil
	}
	return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("no BV identifier in %q", raw))
}

// validateInputURL accepts either an http(s) URL or a bare BV identifier.
func validateInputURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "BV") && bvRe.MatchString(raw) {
		return raw, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: %w", err))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: missing scheme or host"))
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", wrapCategory(CategoryInvalidURL, fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme))
	}
	return parsed.String(), nil
}
