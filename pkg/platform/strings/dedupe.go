// Package strings provides string list helpers for configuration values.
package strings

import "strings"

// SplitList splits a comma-separated value, trims each element and drops
// empty and repeated elements. Order is preserved.
//
//	SplitList(" b1:9092, b2:9092,,b1:9092 ")
//	// []string{"b1:9092", "b2:9092"}
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
