package store

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeS3Location validates and canonicalizes an s3_location value
// before it is persisted to a JobResults record: it must parse as a URL
// with scheme "s3", carries no query string or fragment (those would be
// meaningless for an object key), and its bucket/key path is lower-cased
// only in the bucket component, matching S3 bucket-naming rules.
func NormalizeS3Location(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("store: s3_location must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("store: invalid s3_location %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", fmt.Errorf("store: s3_location %q must use the s3:// scheme", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("store: s3_location %q is missing a bucket", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
