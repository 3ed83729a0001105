package rubric

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type TypeCount struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

type ConnectionRule struct {
	Count    int      `yaml:"count"`
	Doctypes []string `yaml:"doctypes"`
}

type FlagRule struct {
	Flag  string `yaml:"flag"`
	Label string `yaml:"label"`
}

// Rules is the rule configuration for one DocType. A nil or empty field
// means that check is not run.
type Rules struct {
	NumFields       *int            `yaml:"num_fields"`
	NumMandatory    *int            `yaml:"num_mandatory"`
	FieldTypeCounts []TypeCount     `yaml:"field_type_counts"`
	NamingRule      string          `yaml:"naming_rule"`
	Connections     *ConnectionRule `yaml:"connections"`
	Flags           []FlagRule      `yaml:"flags"`
	MinStates       *int            `yaml:"min_states"`
	NumFetched      *int            `yaml:"num_fetched_fields"`
}

// RuleTable is built once at startup and only read afterwards.
type RuleTable struct {
	doctypes map[Doctype]Rules
}

type ruleFile struct {
	Doctypes map[Doctype]Rules `yaml:"doctypes"`
}

func LoadRuleTable(r io.Reader) (*RuleTable, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode rule table: %w", err)
	}

	for doctype := range f.Doctypes {
		if !knownDoctype(doctype) {
			return nil, fmt.Errorf("rule table references unknown doctype %q", doctype)
		}
	}
	return &RuleTable{doctypes: f.Doctypes}, nil
}

// LoadRuleFile reads a rule table from path, or the built-in table when
// path is empty.
func LoadRuleFile(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule table: %w", err)
	}
	defer f.Close()
	return LoadRuleTable(f)
}

var defaultTable = sync.OnceValues(func() (*RuleTable, error) {
	return LoadRuleTable(bytes.NewReader(defaultRulesYAML))
})

func DefaultRuleTable() (*RuleTable, error) {
	return defaultTable()
}

func (t *RuleTable) For(doctype Doctype) (Rules, bool) {
	r, ok := t.doctypes[doctype]
	return r, ok
}

func knownDoctype(d Doctype) bool {
	for _, c := range classifiers {
		if c.doctype == d {
			return true
		}
	}
	return false
}
