package proxy

import (
	"fmt"
	"strings"
)

// apiPrefix is stripped from the front of every proxied request path.
const apiPrefix = "/api/v1"

// SanitizePath validates and normalizes a client-supplied request path,
// stripping the public API prefix and rejecting anything that could smuggle
// an absolute URL or escape the upstream root.
func SanitizePath(rawPath string) (string, error) {
	if strings.Contains(rawPath, "://") {
		return "", fmt.Errorf("path must not contain a scheme: %q", rawPath)
	}

	p := rawPath
	if !strings.HasPrefix(p, apiPrefix) {
		return "", fmt.Errorf("path must start with %s", apiPrefix)
	}
	p = strings.TrimPrefix(p, apiPrefix)

	for strings.HasPrefix(p, "//") {
		p = strings.TrimPrefix(p, "/")
	}
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}
