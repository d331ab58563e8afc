package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// EncodeURLWithSpaces properly encodes a URL that may contain unencoded spaces.
// Some guide providers hand out URLs with raw spaces which need to be %20
// encoded for HTTP.
func EncodeURLWithSpaces(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	// Build URL with properly encoded path and query
	encoded := parsedURL.Scheme + "://" + parsedURL.Host + parsedURL.EscapedPath()
	if parsedURL.RawQuery != "" {
		// Encode spaces in query string as %20
		encodedQuery := strings.ReplaceAll(parsedURL.RawQuery, " ", "%20")
		encoded += "?" + encodedQuery
	}
	return encoded, nil
}

// ValidateSourceURL rejects upstream URLs with schemes other than http(s),
// so a misconfigured source cannot point the fetcher at local files or
// other protocols.
func ValidateSourceURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
}
