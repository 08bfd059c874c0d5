package activity

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// fedidPattern is what a FedID looks like in practice: short alphanumeric.
var fedidPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// UserFromSessionURL extracts the session owner from a session page URL.
//
// Session URLs have the form https://host/<fedid>/..., so the owner is the
// first path segment. Heartbeat payloads carry these URLs verbatim from the
// browser, so the extraction is validated rather than trusted: a URL that
// does not parse, has no path, or whose first segment is not a plausible
// FedID is rejected.
func UserFromSessionURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unparseable session URL %q: %w", rawURL, err)
	}

	segments := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", fmt.Errorf("session URL %q has no path segments", rawURL)
	}

	fedid := segments[0]
	if !fedidPattern.MatchString(fedid) {
		return "", fmt.Errorf("session URL %q does not start with a FedID path segment", rawURL)
	}
	return fedid, nil
}
