package reconciliation

import (
	"sort"
	"strings"
)

// KeyDeriver turns raw order ids from either source into the join key:
// surrounding whitespace trimmed, upper-cased and, when present, one of the
// platform prefixes removed ("ZOM-1001" and "1001" join).
type KeyDeriver struct {
	prefixes []string
}

func NewKeyDeriver(prefixes []string) KeyDeriver {
	var ps []string
	for _, p := range prefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			ps = append(ps, p)
		}
	}
	// Longest first so "ZOMATO-" wins over "ZOM".
	sort.SliceStable(ps, func(i, j int) bool { return len(ps[i]) > len(ps[j]) })
	return KeyDeriver{prefixes: ps}
}

func (k KeyDeriver) Key(orderID string) string {
	key := strings.ToUpper(strings.TrimSpace(orderID))
	for _, p := range k.prefixes {
		if strings.HasPrefix(key, p) && len(key) > len(p) {
			return key[len(p):]
		}
	}
	return key
}
