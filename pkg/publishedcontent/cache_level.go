package publishedcontent

import (
	"fmt"
	"strings"
)

// CacheLevel identifies how long a converted property value may be cached.
type CacheLevel int

const (
	// CacheLevelUnknown defers to the other side of a comparison. It is never used to key a cache.
	CacheLevelUnknown CacheLevel = iota
	// CacheLevelNone means the value is never cached outside the property instance.
	CacheLevelNone
	// CacheLevelContent caches the value with the content item that owns the property.
	CacheLevelContent
	// CacheLevelSnapshot caches the value for the lifetime of the snapshot generation.
	CacheLevelSnapshot
	// CacheLevelRequest caches the value for the lifetime of one request.
	CacheLevelRequest
	// CacheLevelElements caches the value in the process-wide tier.
	CacheLevelElements
)

var cacheLevelNames = map[CacheLevel]string{
	CacheLevelUnknown:  "unknown",
	CacheLevelNone:     "none",
	CacheLevelContent:  "content",
	CacheLevelSnapshot: "snapshot",
	CacheLevelRequest:  "request",
	CacheLevelElements: "elements",
}

// lifetime ranks levels from the shortest-lived (0) to the longest-lived.
func (l CacheLevel) lifetime() int {
	switch l {
	case CacheLevelNone:
		return 0
	case CacheLevelRequest:
		return 1
	case CacheLevelContent:
		return 2
	case CacheLevelSnapshot:
		return 3
	case CacheLevelElements:
		return 4
	default:
		return -1
	}
}

// String returns the lower-case name of the level.
func (l CacheLevel) String() string {
	if name, ok := cacheLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("CacheLevel(%d)", int(l))
}

// IsValid reports whether l is one of the declared levels.
func (l CacheLevel) IsValid() bool {
	_, ok := cacheLevelNames[l]
	return ok
}

// ShorterThan reports whether l lives strictly shorter than other.
// Unknown is never shorter nor longer than anything.
func (l CacheLevel) ShorterThan(other CacheLevel) bool {
	if l == CacheLevelUnknown || other == CacheLevelUnknown {
		return false
	}
	return l.lifetime() < other.lifetime()
}

// EffectiveLevel returns the more restrictive of the requested and declared levels.
// Unknown defers to the other argument; two Unknown levels resolve to None.
func EffectiveLevel(requested, declared CacheLevel) CacheLevel {
	switch {
	case requested == CacheLevelUnknown && declared == CacheLevelUnknown:
		return CacheLevelNone
	case requested == CacheLevelUnknown:
		return declared
	case declared == CacheLevelUnknown:
		return requested
	case requested.ShorterThan(declared):
		return requested
	default:
		return declared
	}
}

// ParseCacheLevel parses a level name. "facade" is accepted as an alias of "elements".
func ParseCacheLevel(s string) (CacheLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return CacheLevelUnknown, nil
	}
	if name == "facade" {
		return CacheLevelElements, nil
	}
	for level, levelName := range cacheLevelNames {
		if levelName == name {
			return level, nil
		}
	}
	return CacheLevelUnknown, &InvalidArgumentError{Op: "parse cache level", Arg: s}
}

// MarshalText implements encoding.TextMarshaler.
func (l CacheLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *CacheLevel) UnmarshalText(text []byte) error {
	level, err := ParseCacheLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
