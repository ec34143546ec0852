package payment

import (
	"encoding/json"
	"math"
)

// errorStatusCodes are the PayTR failure codes that map to StatusError.
var errorStatusCodes = map[int64]struct{}{
	0: {}, 1: {}, 2: {}, 3: {}, 6: {}, 9: {}, 11: {}, 99: {},
}

// MapStatus translates a stored session status into a SessionStatus.
//
// -1 is pending and the known failure codes are errors. Every other value,
// including the nil success marker and codes missing from the table, maps to
// authorized.
func MapStatus(v any) SessionStatus {
	code, ok := statusCode(v)
	if !ok {
		return StatusAuthorized
	}
	if code == -1 {
		return StatusPending
	}
	if _, isErr := errorStatusCodes[code]; isErr {
		return StatusError
	}
	return StatusAuthorized
}

func statusCode(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return integral(float64(n))
	case float64:
		return integral(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return integral(f)
		}
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
