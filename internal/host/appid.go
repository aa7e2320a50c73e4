package host

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeAppID converts a host-supplied id to a native 32-bit app id.
// Composite ids above 0xffffffff carry the app id in their upper 32 bits.
// Accepts integers, floats holding integers, json.Number and decimal strings.
func NormalizeAppID(v any) (uint32, error) {
	var id uint64
	switch x := v.(type) {
	case uint32:
		return x, nil
	case uint64:
		id = x
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative app id %d", x)
		}
		id = uint64(x)
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative app id %d", x)
		}
		id = uint64(x)
	case float64:
		if x < 0 || x != math.Trunc(x) || x >= math.MaxUint64 {
			return 0, fmt.Errorf("invalid app id %v", x)
		}
		id = uint64(x)
	case json.Number:
		return NormalizeAppID(x.String())
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid app id %q: %w", x, err)
		}
		id = u
	default:
		return 0, fmt.Errorf("unsupported app id type %T", v)
	}
	if id > math.MaxUint32 {
		id >>= 32
	}
	return uint32(id), nil
}
