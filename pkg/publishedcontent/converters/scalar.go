package converters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

// Text passes the raw value through. Blank values convert to "".
type Text struct{}

func (Text) HasValue(source string) bool { return notBlank(source) }

func (Text) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	if !notBlank(source) {
		return "", nil
	}
	return source, nil
}

func (Text) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	s, ok := inter.(string)
	if !ok {
		return nil, fmt.Errorf("text: unexpected intermediate %T", inter)
	}
	return s, nil
}

func (Text) DefaultValue() any                       { return "" }
func (Text) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }

// Integer parses a trimmed base-10 integer into an int.
type Integer struct{}

func (Integer) HasValue(source string) bool { return notBlank(source) }

func (Integer) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	s := strings.TrimSpace(source)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("integer: %w", err)
	}
	return n, nil
}

func (Integer) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	n, ok := inter.(int)
	if !ok {
		return nil, fmt.Errorf("integer: unexpected intermediate %T", inter)
	}
	return n, nil
}

func (Integer) DefaultValue() any                       { return 0 }
func (Integer) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }

// Decimal parses an arbitrary-precision decimal.
type Decimal struct{}

func (Decimal) HasValue(source string) bool { return notBlank(source) }

func (Decimal) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	s := strings.TrimSpace(source)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("decimal: %w", err)
	}
	return d, nil
}

func (Decimal) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	d, ok := inter.(decimal.Decimal)
	if !ok {
		return nil, fmt.Errorf("decimal: unexpected intermediate %T", inter)
	}
	return d, nil
}

func (Decimal) DefaultValue() any                       { return decimal.Zero }
func (Decimal) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }

// Boolean accepts 1/0, true/false, yes/no and on/off in any case. Blank is false.
type Boolean struct{}

func (Boolean) HasValue(source string) bool { return notBlank(source) }

func (Boolean) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	default:
		return nil, fmt.Errorf("boolean: invalid value %q", source)
	}
}

func (Boolean) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	b, ok := inter.(bool)
	if !ok {
		return nil, fmt.Errorf("boolean: unexpected intermediate %T", inter)
	}
	return b, nil
}

func (Boolean) DefaultValue() any                       { return false }
func (Boolean) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DateTime parses the stored date formats into a time.Time. Values without a zone are UTC.
type DateTime struct{}

func (DateTime) HasValue(source string) bool { return notBlank(source) }

func (DateTime) ConvertSourceToInter(_ *publishedcontent.PropertyType, source string, _ bool) (any, error) {
	s := strings.TrimSpace(source)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("datetime: unrecognised value %q", source)
}

func (DateTime) ConvertInterToObject(_ *publishedcontent.PropertyType, _ publishedcontent.CacheLevel, inter any, _ bool) (any, error) {
	t, ok := inter.(time.Time)
	if !ok {
		return nil, fmt.Errorf("datetime: unexpected intermediate %T", inter)
	}
	return t, nil
}

func (DateTime) DefaultValue() any                       { return time.Time{} }
func (DateTime) CacheLevel() publishedcontent.CacheLevel { return publishedcontent.CacheLevelElements }
