// FILE: logship/src/internal/tls/parse.go
package tls

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// Canonical config spelling for each protocol version, oldest first.
var versionNames = []struct {
	name string
	id   uint16
}{
	{"TLS1.0", tls.VersionTLS10},
	{"TLS1.1", tls.VersionTLS11},
	{"TLS1.2", tls.VersionTLS12},
	{"TLS1.3", tls.VersionTLS13},
}

// parseTLSVersion accepts "TLS1.2" or "TLS12" in any case. Anything else,
// including the empty string, yields fallback.
func parseTLSVersion(version string, fallback uint16) uint16 {
	v := strings.ToUpper(strings.TrimSpace(version))
	for _, vn := range versionNames {
		if v == vn.name || v == strings.Replace(vn.name, ".", "", 1) {
			return vn.id
		}
	}
	return fallback
}

func tlsVersionString(version uint16) string {
	for _, vn := range versionNames {
		if vn.id == version {
			return vn.name
		}
	}
	return fmt.Sprintf("0x%04x", version)
}

// parseCipherSuites resolves a comma-separated list against the secure
// suites crypto/tls offers for TLS 1.2. TLS 1.3 suites are fixed by the
// runtime, so their names land in unknown along with misspellings.
func parseCipherSuites(suites string) (ids []uint16, unknown []string) {
	byName := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		if slices.Contains(cs.SupportedVersions, tls.VersionTLS12) {
			byName[cs.Name] = cs.ID
		}
	}

	for _, name := range strings.Split(suites, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if id, ok := byName[name]; ok {
			ids = append(ids, id)
		} else {
			unknown = append(unknown, name)
		}
	}
	return ids, unknown
}
