package gallery

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidArchivePattern indicates the archival host pattern did not compile.
var ErrInvalidArchivePattern = errors.New("gallery: invalid archive host pattern")

// ArchiveMatcher decides whether an image URL points at durable archival
// storage. Feeds only surface archived images so expired third-party links
// never reach the public gallery.
type ArchiveMatcher struct {
	pattern *regexp.Regexp
}

// NewArchiveMatcher compiles the host pattern case-insensitively.
func NewArchiveMatcher(pattern string) (*ArchiveMatcher, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return nil, ErrInvalidArchivePattern
	}
	compiled, err := regexp.Compile("(?i)" + trimmed)
	if err != nil {
		return nil, errors.Join(ErrInvalidArchivePattern, err)
	}
	return &ArchiveMatcher{pattern: compiled}, nil
}

// Matches reports whether the URL is confirmed archived.
func (m *ArchiveMatcher) Matches(imageURL string) bool {
	if imageURL == "" {
		return false
	}
	return m.pattern.MatchString(imageURL)
}
