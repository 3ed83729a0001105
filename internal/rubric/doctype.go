// Package rubric holds the structural checks run against submitted DocType
// JSON files and client scripts.
package rubric

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/shrimpsizemoose/semla/internal/archive"
)

type Doctype string

const (
	FlightPassenger Doctype = "Flight Passenger"
	Airline         Doctype = "Airline"
	AirplaneTicket  Doctype = "Airplane Ticket"
	Airplane        Doctype = "Airplane"
)

// classifiers is evaluated top to bottom, first match wins. The ticket rule
// must stay above the generic airplane rule.
var classifiers = []struct {
	match   func(filename string) bool
	doctype Doctype
}{
	{contains("passenger"), FlightPassenger},
	{contains("airline"), Airline},
	{contains("airplane_ticket"), AirplaneTicket},
	{contains("airplane"), Airplane},
}

func contains(sub string) func(string) bool {
	return func(filename string) bool { return strings.Contains(filename, sub) }
}

// Classify guesses the DocType a JSON file describes from its name.
func Classify(filename string) (Doctype, bool) {
	for _, c := range classifiers {
		if c.match(filename) {
			return c.doctype, true
		}
	}
	return "", false
}

var layoutFieldTypes = map[string]bool{
	"Column Break":  true,
	"Section Break": true,
	"Tab Break":     true,
}

const doctypeSchemaJSON = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"fields": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["fieldtype"],
				"properties": {"fieldtype": {"type": "string"}}
			}
		},
		"links": {
			"type": "array",
			"items": {"type": "object", "required": ["link_doctype"]}
		},
		"states": {"type": "array"},
		"permissions": {"type": "array", "items": {"type": "object"}}
	}
}`

var doctypeSchema = mustSchema(doctypeSchemaJSON)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("compile doctype schema: %v", err))
	}
	return rs
}

// MalformedError reports a DocType file that cannot be checked at all.
type MalformedError struct {
	File    string
	Details []string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed doctype %s: %s", e.File, strings.Join(e.Details, "; "))
}

func (e *MalformedError) Message() string {
	return fmt.Sprintf("<strong>%s</strong> is not a valid DocType JSON file", e.File)
}

// doctypeMeta is a validated DocType document.
type doctypeMeta struct {
	doc map[string]interface{}
}

func parseDoctype(ctx context.Context, entry archive.Entry) (*doctypeMeta, error) {
	keyErrs, err := doctypeSchema.ValidateBytes(ctx, entry.Raw)
	if err != nil {
		return nil, &MalformedError{File: entry.Name, Details: []string{err.Error()}}
	}
	if len(keyErrs) > 0 {
		details := make([]string, len(keyErrs))
		for i, ke := range keyErrs {
			details[i] = ke.Error()
		}
		return nil, &MalformedError{File: entry.Name, Details: details}
	}

	doc, ok := entry.Object()
	if !ok {
		return nil, &MalformedError{File: entry.Name, Details: []string{"not an object"}}
	}
	return &doctypeMeta{doc: doc}, nil
}

func (m *doctypeMeta) name() string {
	name, _ := m.doc["name"].(string)
	return name
}

func (m *doctypeMeta) list(key string) []map[string]interface{} {
	items, _ := m.doc[key].([]interface{})
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

func (m *doctypeMeta) fields() []map[string]interface{} {
	return m.list("fields")
}

func fieldType(field map[string]interface{}) string {
	t, _ := field["fieldtype"].(string)
	return t
}

// Evaluate runs every configured check for entry's DocType. Files that do not
// map to a DocType with rules produce no problems.
func (t *RuleTable) Evaluate(ctx context.Context, entry archive.Entry) ([]string, error) {
	doctype, ok := Classify(entry.Name)
	if !ok {
		return nil, nil
	}
	rules, ok := t.For(doctype)
	if !ok {
		return nil, nil
	}

	meta, err := parseDoctype(ctx, entry)
	if err != nil {
		return nil, err
	}
	return rules.check(doctype, meta), nil
}

func (r Rules) check(doctype Doctype, m *doctypeMeta) []string {
	var problems []string

	if r.NumFields != nil {
		problems = append(problems, checkNumFields(m, *r.NumFields)...)
	}
	if r.NumMandatory != nil {
		problems = append(problems, checkNumMandatory(m, *r.NumMandatory)...)
	}
	if len(r.FieldTypeCounts) > 0 {
		problems = append(problems, checkFieldTypeCounts(m, r.FieldTypeCounts)...)
	}
	if r.NamingRule != "" {
		problems = append(problems, checkNamingRule(doctype, m, r.NamingRule)...)
	}
	if r.Connections != nil {
		problems = append(problems, checkConnections(doctype, m, *r.Connections)...)
	}
	if len(r.Flags) > 0 {
		problems = append(problems, checkFlags(doctype, m, r.Flags)...)
	}
	if r.MinStates != nil {
		problems = append(problems, checkStates(doctype, m, *r.MinStates)...)
	}
	if r.NumFetched != nil {
		problems = append(problems, checkFetched(doctype, m, *r.NumFetched)...)
	}

	return problems
}

func checkNumFields(m *doctypeMeta, expected int) []string {
	n := 0
	for _, f := range m.fields() {
		if !layoutFieldTypes[fieldType(f)] {
			n++
		}
	}
	if n != expected {
		return []string{fmt.Sprintf("%s DocType must contain %s fields, but found %d", m.name(), bold(expected), n)}
	}
	return nil
}

func checkNumMandatory(m *doctypeMeta, expected int) []string {
	n := 0
	for _, f := range m.fields() {
		if v, ok := intValue(f["reqd"]); ok && v == 1 {
			n++
		}
	}
	if n != expected {
		return []string{fmt.Sprintf("There must be exactly %d mandatory fields in %s, but found %d", expected, m.name(), n)}
	}
	return nil
}

// checkFieldTypeCounts only looks at the expected types; extra types pass.
// An expected type that never occurs is a problem even when its count is 0.
func checkFieldTypeCounts(m *doctypeMeta, expected []TypeCount) []string {
	actual := make(map[string]int)
	for _, f := range m.fields() {
		actual[fieldType(f)]++
	}

	var problems []string
	for _, tc := range expected {
		got, present := actual[tc.Type]
		if !present || got != tc.Count {
			problems = append(problems, fmt.Sprintf("%s must have exactly %d `%s` fields, but found %d", m.name(), tc.Count, tc.Type, got))
		}
	}
	return problems
}

func checkNamingRule(doctype Doctype, m *doctypeMeta, expected string) []string {
	if rule, _ := m.doc["naming_rule"].(string); rule != expected {
		return []string{fmt.Sprintf("%s naming rule should be %s", doctype, expected)}
	}
	return nil
}

func checkConnections(doctype Doctype, m *doctypeMeta, expected ConnectionRule) []string {
	var problems []string

	links := m.list("links")
	if len(links) != expected.Count {
		problems = append(problems, fmt.Sprintf("Expected %d connections in %s, but found %d", expected.Count, doctype, len(links)))
	}

	linked := make(map[string]bool, len(links))
	for _, link := range links {
		if dt, ok := link["link_doctype"].(string); ok {
			linked[dt] = true
		}
	}
	for _, dt := range expected.Doctypes {
		if !linked[dt] {
			problems = append(problems, fmt.Sprintf("Connection/Link in `%s` DocType does not exist for `%s`", doctype, dt))
		}
	}
	return problems
}

func checkFlags(doctype Doctype, m *doctypeMeta, flags []FlagRule) []string {
	var problems []string
	for _, flag := range flags {
		if v, ok := intValue(m.doc[flag.Flag]); !ok || v != 1 {
			problems = append(problems, fmt.Sprintf("%s DocType must be %s.", doctype, bold(flag.Label)))
		}
	}
	return problems
}

// checkStates is a floor, unlike every other count check.
func checkStates(doctype Doctype, m *doctypeMeta, minimum int) []string {
	states, _ := m.doc["states"].([]interface{})
	if n := len(states); n < minimum {
		return []string{fmt.Sprintf("At least %d <strong>Document States</strong> must be defined for %s doctype.", minimum, doctype)}
	}
	return nil
}

func checkFetched(doctype Doctype, m *doctypeMeta, expected int) []string {
	n := 0
	for _, f := range m.fields() {
		if src, _ := f["fetch_from"].(string); src != "" {
			n++
		}
	}
	if n != expected {
		return []string{fmt.Sprintf("Exactly %d fields must be fetched from some link into %s DocType.", expected, doctype)}
	}
	return nil
}
