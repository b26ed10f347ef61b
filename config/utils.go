package config

import (
	"fmt"
	"strings"
)

// checkOverflow reports unknown YAML fields caught by the XXX inline map,
// matching the teacher's config.checkOverflow.
func checkOverflow(m map[string]interface{}, ctx string) error {
	if len(m) > 0 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		return fmt.Errorf("unknown fields in %s: %s", ctx, strings.Join(keys, ", "))
	}
	return nil
}
