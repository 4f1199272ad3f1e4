package backend

import (
	"slices"
	"strings"
)

// DefaultPriority is walked when neither the caller nor the document names a backend.
var DefaultPriority = []string{"sequential", "adk"}

// Status is the probe outcome of a backend.
type Status int

const (
	StatusAvailable Status = iota
	// StatusMissing backends are skipped silently.
	StatusMissing
	// StatusBroken backends fail resolution when named.
	StatusBroken
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusMissing:
		return "missing"
	case StatusBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Availability is the probe result of one registered backend.
type Availability struct {
	Name    string
	Aliases []string
	Status  Status
	Err     error
}

// Matches reports whether tag names this backend, ignoring case.
func (a Availability) Matches(tag string) bool {
	tag = normalizeTag(tag)
	if tag == "" {
		return false
	}
	if strings.EqualFold(a.Name, tag) {
		return true
	}
	return slices.ContainsFunc(a.Aliases, func(alias string) bool {
		return strings.EqualFold(alias, tag)
	})
}

// Resolve picks a backend name. Candidates are tried in order: explicit,
// then configured, then DefaultPriority. A named candidate that matches no
// entry of avail fails with UnknownFrameworkError; a missing one falls
// through; a broken one fails with BackendUnusableError.
// The order of avail does not affect the result.
func Resolve(explicit, configured string, avail []Availability) (string, error) {
	for _, tag := range []string{explicit, configured} {
		if normalizeTag(tag) == "" {
			continue
		}
		entry, ok := lookup(tag, avail)
		if !ok {
			return "", &UnknownFrameworkError{Tag: tag, Known: knownNames(avail)}
		}
		switch entry.Status {
		case StatusAvailable:
			return entry.Name, nil
		case StatusBroken:
			return "", &BackendUnusableError{Tag: entry.Name, Err: entry.Err}
		}
	}

	for _, name := range DefaultPriority {
		if entry, ok := lookup(name, avail); ok && entry.Status == StatusAvailable {
			return entry.Name, nil
		}
	}
	return "", &UnknownFrameworkError{Known: knownNames(avail)}
}

func lookup(tag string, avail []Availability) (Availability, bool) {
	for _, a := range avail {
		if a.Matches(tag) {
			return a, true
		}
	}
	return Availability{}, false
}

func knownNames(avail []Availability) []string {
	names := make([]string, 0, len(avail))
	for _, a := range avail {
		names = append(names, a.Name)
	}
	slices.Sort(names)
	return names
}

func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if strings.EqualFold(tag, "null") || strings.EqualFold(tag, "none") {
		return ""
	}
	return tag
}
