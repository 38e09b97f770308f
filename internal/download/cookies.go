package download

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// materializeCookies writes credential material to a short-lived, owner-only
// temporary file and returns its path plus a cleanup function. The material
// may be base64 encoded (the common transport form) or plain Netscape cookie
// text; both are accepted.
func materializeCookies(raw, dir string) (string, func(), error) {
	content := decodeCookieMaterial(raw)
	if content == "" {
		return "", nil, fmt.Errorf("download: cookie material is empty")
	}

	path := filepath.Join(dir, fmt.Sprintf(".cookies-%s.txt", uuid.NewString()))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", nil, fmt.Errorf("download: writing cookie file: %w", err)
	}
	cleanup := func() {
		os.Remove(path) //nolint:errcheck
	}
	return path, cleanup, nil
}

// decodeCookieMaterial returns plain cookie text verbatim so the Netscape
// format's trailing newline survives the round trip; only the trimmed form is
// used as the base64 candidate.
func decodeCookieMaterial(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		text := string(decoded)
		// Base64 that decodes to binary noise is almost certainly plain
		// cookie text that happened to be valid base64.
		if strings.Contains(text, "\t") || strings.Contains(text, "# Netscape") {
			return text
		}
	}
	return raw
}
