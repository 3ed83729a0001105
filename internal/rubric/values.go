package rubric

import (
	"encoding/json"
	"fmt"
	"math"
)

func bold(v interface{}) string {
	return fmt.Sprintf("<strong>%v</strong>", v)
}

// intValue reads an integral JSON value. Booleans count as 0/1 the way the
// desk UI stores checkboxes.
func intValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truthy mirrors loose JSON truthiness: null, false, 0, "" and empty
// containers are false.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	if n, ok := intValue(v); ok {
		return n != 0
	}
	return true
}

// IntEquals reports whether v is the integer want.
func IntEquals(v interface{}, want int64) bool {
	n, ok := intValue(v)
	return ok && n == want
}
