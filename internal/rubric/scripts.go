package rubric

import (
	"fmt"
	"strings"
	"unicode"
)

// ScriptRequirement demands that File contains at least one of AnyOf once
// all whitespace is removed.
type ScriptRequirement struct {
	File    string
	AnyOf   []string
	Message string
}

// Compact drops every whitespace rune so signatures match regardless of
// indentation or line breaks.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CheckScripts is substring based: reformatting a call across string
// concatenation or comments will not be recognised. Missing files are
// treated as empty.
func CheckScripts(scripts map[string]string, reqs []ScriptRequirement) []string {
	compacted := make(map[string]string, len(scripts))
	for name, content := range scripts {
		compacted[name] = Compact(content)
	}

	var problems []string
	for _, req := range reqs {
		content := compacted[req.File]
		found := false
		for _, sig := range req.AnyOf {
			if strings.Contains(content, sig) {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("`%s` must %s", req.File, req.Message))
		}
	}
	return problems
}
