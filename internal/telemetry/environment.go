package telemetry

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeEnvironment turns a raw browser user-agent string into a short
// human display name ("Chrome 120 on Mac OS X") for review dashboards.
// Unparseable input falls back to a generic label rather than leaking the
// raw string into reports.
func DescribeEnvironment(rawUserAgent string) string {
	if strings.TrimSpace(rawUserAgent) == "" {
		return "Unknown Environment"
	}

	ua := useragent.New(rawUserAgent)
	name, version := ua.Browser()
	if name == "" {
		return "Unknown Environment"
	}

	parts := []string{name}
	if version != "" {
		if i := strings.Index(version, "."); i > 0 {
			version = version[:i]
		}
		parts = append(parts, version)
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, "on", os)
	}
	return strings.Join(parts, " ")
}
