package converters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Tags splits a comma separated list, or decodes a JSON string array, into trimmed tags.
// Each conversion returns its own slice, so the shared intermediate never changes. A value
// read at Elements level is itself shared by the process tier and must be treated as read-only.
type Tags struct{}

func (Tags) HasValue(source string) bool {
	s := strings.TrimSpace(source)
	return s != "" && s != "[]"
}

func (Tags) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	s := strings.TrimSpace(source)
	var parts []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &parts); err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}
	} else {
		parts = strings.Split(s, ",")
	}

	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags, nil
}

func (Tags) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	tags, ok := inter.([]string)
	if !ok {
		return nil, fmt.Errorf("tags: unexpected intermediate %T", inter)
	}
	return slices.Clone(tags), nil
}

func (Tags) DefaultValue() any                       { return []string{} }
func (Tags) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }

// JSON decodes the raw value as a JSON document. Objects become map[string]any.
// Callers must treat the result as read-only since it may be shared by the process tier.
type JSON struct{}

func (JSON) HasValue(source string) bool {
	s := strings.TrimSpace(source)
	return s != "" && s != "null"
}

func (JSON) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	if !notBlank(source) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(source), &v); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return v, nil
}

func (JSON) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	return inter, nil
}

func (JSON) DefaultValue() any                       { return nil }
func (JSON) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }
