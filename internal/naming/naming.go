// Package naming generates and recognises sandbox VM names.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const DefaultPrefix = "vm"

var (
	prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)
	sizePattern   = regexp.MustCompile(`^[0-9]+[a-z]+$`)
)

// Scheme produces names of the form <prefix>-<ram>-<storage>-<6 hex>.
type Scheme struct {
	prefix  string
	matcher *regexp.Regexp
}

func NewScheme(prefix string) (*Scheme, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !prefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid vm name prefix %q", prefix)
	}

	return &Scheme{
		prefix:  prefix,
		matcher: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-[0-9]+[a-z]+-[0-9]+[a-z]+-[0-9a-f]{6}$`),
	}, nil
}

func (s *Scheme) Prefix() string {
	return s.prefix
}

// Generate builds a fresh name from the requested sizes, e.g. "8G", "50G"
// gives "vm-8g-50g-1a2b3c".
func (s *Scheme) Generate(ram, storage string) (string, error) {
	ramPart, err := sizePart(ram)
	if err != nil {
		return "", err
	}
	storagePart, err := sizePart(storage)
	if err != nil {
		return "", err
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s-%s-%s", s.prefix, ramPart, storagePart, suffix), nil
}

// Match reports whether name follows the scheme.
func (s *Scheme) Match(name string) bool {
	return s.matcher.MatchString(name)
}

func sizePart(size string) (string, error) {
	part := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(size), " ", ""))
	if !sizePattern.MatchString(part) {
		return "", fmt.Errorf("size %q cannot be used in a vm name", size)
	}
	return part, nil
}
