package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chainsnap/internal/types"
)

const (
	PointerKey        = "latest.json"
	DateLayout        = "2006-01-02"
	unknownHeightText = "unknown"
)

var artifactSuffixes = map[types.ArtifactKind]string{
	types.ArtifactKindArchive:   ".tar.zst",
	types.ArtifactKindChecksum:  ".tar.zst.sha256",
	types.ArtifactKindSignature: ".tar.zst.sha256.sig",
	types.ArtifactKindMetadata:  ".json",
}

// longest suffix first so ".tar.zst.sha256.sig" is not read as ".sig" of something else
var suffixOrder = []types.ArtifactKind{
	types.ArtifactKindSignature,
	types.ArtifactKindChecksum,
	types.ArtifactKindArchive,
	types.ArtifactKindMetadata,
}

var stemPattern = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2})_(\d+|unknown)$`)

// BuildStem derives the generation filename stem from its date and height.
// Two runs on the same day at the same height yield the same stem.
func BuildStem(prefix string, network string, date time.Time, height int64, heightKnown bool) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{prefix, network} {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	parts = append(parts, date.UTC().Format(DateLayout), HeightToken(height, heightKnown))
	return strings.Join(parts, "_")
}

func HeightToken(height int64, known bool) string {
	if !known {
		return unknownHeightText
	}
	return strconv.FormatInt(height, 10)
}

// ParseStem recovers the date and height encoded in a stem.
func ParseStem(stem string) (date time.Time, height int64, heightKnown bool, ok bool) {
	match := stemPattern.FindStringSubmatch(stem)
	if match == nil {
		return time.Time{}, 0, false, false
	}
	parsed, err := time.Parse(DateLayout, match[2])
	if err != nil {
		return time.Time{}, 0, false, false
	}
	if match[3] == unknownHeightText {
		return parsed, types.UnknownHeight, false, true
	}
	value, err := strconv.ParseInt(match[3], 10, 64)
	if err != nil {
		return time.Time{}, 0, false, false
	}
	return parsed, value, true, true
}

func ArtifactKey(stem string, kind types.ArtifactKind) string {
	return stem + artifactSuffixes[kind]
}

// SplitArtifactKey maps an object key back to its stem and kind. Keys that
// do not carry a parseable stem, such as the pointer, are rejected.
func SplitArtifactKey(key string) (string, types.ArtifactKind, bool) {
	name := key
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	for _, kind := range suffixOrder {
		suffix := artifactSuffixes[kind]
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		stem := strings.TrimSuffix(name, suffix)
		if _, _, _, ok := ParseStem(stem); !ok {
			return "", "", false
		}
		return stem, kind, true
	}
	return "", "", false
}

func LocalArtifacts(dir string, stem string) types.LocalArtifacts {
	join := func(kind types.ArtifactKind) string {
		return filepath.Join(dir, ArtifactKey(stem, kind))
	}
	return types.LocalArtifacts{
		Archive:   join(types.ArtifactKindArchive),
		Checksum:  join(types.ArtifactKindChecksum),
		Signature: join(types.ArtifactKindSignature),
		Metadata:  join(types.ArtifactKindMetadata),
	}
}

func describeHeight(height int64, known bool) string {
	if !known {
		return fmt.Sprintf("%s (node unreachable)", unknownHeightText)
	}
	return strconv.FormatInt(height, 10)
}
