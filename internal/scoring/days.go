package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/rubric"
)

const (
	passedFeedback    = "All checks passed 🎉"
	feedbackSeparator = "<br/>"
)

var day1Files = []string{
	"airline.json",
	"airplane.json",
	"airplane_ticket.json",
	"flight_passenger.json",
}

// A leading "*" matches by suffix.
var day2Files = []string{
	"airplane_flight.json",
	"airplane_ticket.json",
	"show-me.html",
	"airplane_flight.html",
	"airplane_flight_row.html",
	"airplane_ticket.py",
	"flight_passenger.py",
	"airplane_flight.py",
	"*web_form.json",
	"*notification.json",
}

var day3Files = []string{
	"airline.js",
	"airplane_ticket.js",
	"airplane_ticket.py",
	"airplane_ticket.json",
	"airplane.json",
	"airport.json",
	"airplanes_by_airline.json",
	"revenue_by_airline.py",
	"add_on_popularity.json",
}

var day3Scripts = []rubric.ScriptRequirement{
	{
		File:    "airplane_ticket.js",
		AnyOf:   []string{"frm.add_custom_button"},
		Message: "add a custom button using <strong>frm.add_custom_button()</strong> function",
	},
	{
		File:    "airplane_ticket.js",
		AnyOf:   []string{"newfrappe.ui.Dialog", "frappe.prompt("},
		Message: "create a new dialog using <strong>new frappe.ui.Dialog()</strong> or <strong>frappe.prompt</strong>",
	},
	{
		File:    "airplane_ticket.js",
		AnyOf:   []string{"frm.set_value"},
		Message: "set value of 'seat' using <strong>frm.set_value()</strong> function",
	},
	{
		File:    "airline.js",
		AnyOf:   []string{"frm.add_web_link"},
		Message: "add a web link using <strong>frm.add_web_link()</strong> function",
	},
}

var day3Permissions = []rubric.RoleRequirement{
	{Role: "Flight Crew Member", Capabilities: []string{"create", "read", "write"}},
	{Role: "Travel Agent", Capabilities: []string{"create", "read", "write", "delete"}},
	{Role: "Airport Authority Personnel", Capabilities: []string{"create", "read", "write", "delete"}},
}

const scheduledCondition = "doc.status=='Scheduled'"

type verdict struct {
	status   models.SubmissionStatus
	feedback string
}

func failed(problems []string) verdict {
	return verdict{status: models.StatusFailed, feedback: strings.Join(problems, feedbackSeparator)}
}

func inProgress() verdict {
	return verdict{status: models.StatusCheckInProgress}
}

// judge runs the rubric for day. Rubric violations end up in the verdict;
// only a DocType file that cannot be read at all is returned as an error.
func (g *Grader) judge(ctx context.Context, day string, entries archive.Entries) (verdict, error) {
	switch day {
	case models.Day1:
		problems, err := g.day1Problems(ctx, entries)
		if err != nil {
			return verdict{}, err
		}
		if len(problems) > 0 {
			return failed(problems), nil
		}
		return verdict{status: models.StatusPassed, feedback: passedFeedback}, nil

	case models.Day2:
		if problems := day2Problems(entries); len(problems) > 0 {
			return failed(problems), nil
		}
		// the remaining checks run in an external pipeline that reports back
		// through CompleteCheck
		logger.Info.Printf("Day 2 archive passed the schema checks, awaiting external checks")
		return inProgress(), nil

	case models.Day3:
		if problems := day3Problems(entries); len(problems) > 0 {
			return failed(problems), nil
		}
		return inProgress(), nil

	case models.Day4:
		return inProgress(), nil
	}
	return verdict{}, ErrUnsupportedDay
}

func (g *Grader) day1Problems(ctx context.Context, entries archive.Entries) ([]string, error) {
	var problems []string

	if n := len(entries); n != len(day1Files) {
		problems = append(problems, fmt.Sprintf("There must be exactly %d files in the zip file, found %d.", len(day1Files), n))
	}

	expected := make(map[string]bool, len(day1Files))
	for _, name := range day1Files {
		expected[name] = true
	}
	for _, e := range entries {
		if !expected[e.Name] {
			problems = append(problems, fmt.Sprintf("Expected file name to be one of [%s], but found %s.", strings.Join(day1Files, ", "), e.Name))
		}
	}

	for _, e := range entries {
		if !e.IsJSON() {
			continue
		}
		found, err := g.rules.Evaluate(ctx, e)
		if err != nil {
			return nil, err
		}
		problems = append(problems, found...)
	}
	return problems, nil
}

func requiredFileProblems(entries archive.Entries, required []string) []string {
	var problems []string
	for _, req := range required {
		if !hasFile(entries, req) {
			problems = append(problems, fmt.Sprintf("Required file `<strong>%s</strong>` not found.", req))
		}
	}
	return problems
}

func hasFile(entries archive.Entries, pattern string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		_, found := entries.FindSuffix(suffix)
		return found
	}
	for _, e := range entries {
		if e.Name == pattern {
			return true
		}
	}
	return false
}

// object returns the first JSON object whose name ends with suffix, or an
// empty one so field checks report the value as missing.
func object(entries archive.Entries, suffix string) (map[string]interface{}, bool) {
	e, ok := entries.FindSuffix(suffix)
	if !ok {
		return nil, false
	}
	doc, ok := e.Object()
	if !ok {
		return map[string]interface{}{}, true
	}
	return doc, true
}

func day2Problems(entries archive.Entries) []string {
	problems := requiredFileProblems(entries, day2Files)

	if form, ok := object(entries, "web_form.json"); ok {
		if dt, _ := form["doc_type"].(string); dt != "Airplane Ticket" {
			problems = append(problems, "Web Form must be for Airplane Ticket DocType.")
		}
	}

	if n, ok := object(entries, "notification.json"); ok {
		problems = append(problems, notificationProblems(n)...)
	}

	if flight, ok := object(entries, "airplane_flight.json"); ok {
		if !rubric.Truthy(flight["has_web_view"]) {
			problems = append(problems, "Web View must be enabled for <strong>Airplane Flight</strong> DocType.")
		}
	}

	return problems
}

func notificationProblems(n map[string]interface{}) []string {
	var problems []string
	if event, _ := n["event"].(string); event != "Days Before" {
		problems = append(problems, "Notification must be for Days Before event.")
	}
	if !rubric.IntEquals(n["days_in_advance"], 1) {
		problems = append(problems, "Notification must be sent 1 day in advance.")
	}
	if dt, _ := n["document_type"].(string); dt != "Airplane Flight" {
		problems = append(problems, "Notification must be for Airplane Flight DocType.")
	}

	condition, _ := n["condition"].(string)
	if !strings.Contains(normalizeCondition(condition), scheduledCondition) {
		problems = append(problems, "Notification must be for <strong>Scheduled</strong> Airplane Flights only.")
	}
	return problems
}

// normalizeCondition lets doc.status == "Scheduled" and its escaped or
// single-quoted spellings compare equal.
func normalizeCondition(condition string) string {
	condition = rubric.Compact(condition)
	condition = strings.ReplaceAll(condition, `\"`, "'")
	return strings.ReplaceAll(condition, `"`, "'")
}

// day3Problems stops at the manifest: content checks assume the files exist.
func day3Problems(entries archive.Entries) []string {
	if problems := requiredFileProblems(entries, day3Files); len(problems) > 0 {
		return problems
	}

	scripts := make(map[string]string)
	for name, e := range entries.ByExtension(".js") {
		scripts[name] = e.Text()
	}
	problems := rubric.CheckScripts(scripts, day3Scripts)

	ticket, ok := entries.ByExtension(".json")["airplane_ticket.json"].Object()
	if !ok {
		ticket = map[string]interface{}{}
	}
	return append(problems, rubric.CheckPermissions(string(rubric.AirplaneTicket), ticket, day3Permissions)...)
}
