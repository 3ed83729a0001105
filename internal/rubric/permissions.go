package rubric

import (
	"fmt"
	"sort"
	"strings"
)

var capabilities = []string{"create", "read", "write", "delete"}

type RoleRequirement struct {
	Role         string
	Capabilities []string
}

// CheckPermissions compares the permission table of a DocType against the
// exact capability set each role must hold. Rows for the same role are merged.
func CheckPermissions(doctype string, doc map[string]interface{}, reqs []RoleRequirement) []string {
	granted := make(map[string]map[string]bool)
	rows, _ := doc["permissions"].([]interface{})
	for _, row := range rows {
		perm, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		role, _ := perm["role"].(string)
		if granted[role] == nil {
			granted[role] = make(map[string]bool)
		}
		for _, c := range capabilities {
			if IntEquals(perm[c], 1) {
				granted[role][c] = true
			}
		}
	}

	var problems []string
	for _, req := range reqs {
		have, ok := granted[req.Role]
		if !ok {
			problems = append(problems, fmt.Sprintf("Role %s must be added in permission rules of %s DocType.", bold(req.Role), doctype))
			continue
		}

		want := make(map[string]bool, len(req.Capabilities))
		var missing []string
		for _, c := range req.Capabilities {
			want[c] = true
			if !have[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) == 0 && len(have) == len(want) {
			continue
		}

		if len(missing) == 0 {
			// strict superset
			only := append([]string(nil), req.Capabilities...)
			sort.Strings(only)
			problems = append(problems, fmt.Sprintf("Role %s must have only %s permissions for %s DocType.", bold(req.Role), bold(strings.Join(only, ", ")), doctype))
			continue
		}
		sort.Strings(missing)
		problems = append(problems, fmt.Sprintf("Role %s must have %s permissions for %s DocType.", bold(req.Role), bold(strings.Join(missing, ", ")), doctype))
	}
	return problems
}
