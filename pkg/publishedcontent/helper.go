package publishedcontent

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseContentID converts an untyped content id, as found in route values and template
// arguments, to an int. Integers and numeric strings are accepted.
func ParseContentID(v any) (int, error) {
	switch id := v.(type) {
	case int:
		return id, nil
	case int32:
		return int(id), nil
	case int64:
		return int(id), nil
	case uint:
		return int(id), nil
	case uint32:
		return int(id), nil
	case float64:
		if id == float64(int(id)) {
			return int(id), nil
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if err == nil {
			return n, nil
		}
	case fmt.Stringer:
		return ParseContentID(id.String())
	}
	return 0, &InvalidArgumentError{Op: "parse content id", Arg: fmt.Sprintf("%v (%T)", v, v)}
}
