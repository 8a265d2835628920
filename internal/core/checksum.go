package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

var checksumLine = regexp.MustCompile(`^([0-9a-fA-F]{64}) [ *]?(.+)$`)

// FormatChecksumLine renders a sha256sum compatible line.
func FormatChecksumLine(digest string, filename string) string {
	return fmt.Sprintf("%s  %s\n", strings.ToLower(digest), filename)
}

// ParseChecksumLine reads the first non-empty line of a checksum file.
func ParseChecksumLine(content string) (string, string, error) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		match := checksumLine.FindStringSubmatch(trimmed)
		if match == nil {
			return "", "", errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("malformed checksum line")
		}
		return strings.ToLower(match[1]), strings.TrimSpace(match[2]), nil
	}
	return "", "", errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("checksum file is empty")
}
