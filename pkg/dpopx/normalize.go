package dpopx

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURI brings a URI into the canonical form used for htu comparison
// (RFC 9449 §4.2): lowercase scheme and host, default ports removed, query
// and fragment dropped, path preserved as-is.
func NormalizeURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("dpopx: invalid uri: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("dpopx: uri must be absolute: %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	// Strip the default port for the scheme.
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	return scheme + "://" + host + u.EscapedPath(), nil
}
