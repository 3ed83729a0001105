package scoring

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/blob"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/notify"
	"github.com/shrimpsizemoose/semla/internal/queue"
	"github.com/shrimpsizemoose/semla/internal/rubric"
	"github.com/shrimpsizemoose/semla/internal/store/sqlite"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, t *queue.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type testEnv struct {
	grader   *Grader
	store    *sqlite.SQLiteStore
	blobDir  string
	enqueuer *MockEnqueuer
	sender   *MockSender
}

func setupGrader(t *testing.T, devMode bool) *testEnv {
	t.Helper()

	s, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dir := t.TempDir()
	blobs, err := blob.NewLocalStore(dir)
	require.NoError(t, err)

	rules, err := rubric.DefaultRuleTable()
	require.NoError(t, err)

	env := &testEnv{
		store:    s,
		blobDir:  dir,
		enqueuer: &MockEnqueuer{},
		sender:   &MockSender{},
	}
	env.grader = NewGrader(s, blobs, rules, env.enqueuer, env.sender, devMode)
	return env
}

// expectScheduling accepts any number of similarity tasks.
func (e *testEnv) expectScheduling() {
	e.enqueuer.On("Enqueue", mock.Anything, mock.MatchedBy(func(t *queue.Task) bool {
		return t.Type == queue.TaskSimilarity && t.SubmissionID != ""
	})).Return(nil).Maybe()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeArchive stores a zip under the blob root and returns its reference.
func (e *testEnv) writeArchive(t *testing.T, ref string, files map[string]string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.blobDir, ref), zipBytes(t, files), 0o644))
	return ref
}

func fixtureDay1Files() map[string]string {
	return map[string]string{
		"flight_passenger.json": `{
			"name": "Flight Passenger",
			"naming_rule": "Autoincrement",
			"fields": [
				{"fieldname": "first_name", "fieldtype": "Data"},
				{"fieldname": "last_name", "fieldtype": "Data"},
				{"fieldname": "date_of_birth", "fieldtype": "Date"}
			]
		}`,
		"airline.json": `{
			"name": "Airline",
			"fields": [
				{"fieldname": "airline_name", "fieldtype": "Data", "reqd": 1},
				{"fieldname": "section_break_1", "fieldtype": "Section Break"},
				{"fieldname": "founding_year", "fieldtype": "Int"},
				{"fieldname": "headquarters", "fieldtype": "Data", "reqd": 1}
			],
			"links": [{"link_doctype": "Airplane", "link_fieldname": "airline"}]
		}`,
		"airplane.json": `{
			"name": "Airplane",
			"fields": [
				{"fieldname": "model", "fieldtype": "Data", "reqd": 1},
				{"fieldname": "capacity", "fieldtype": "Int", "reqd": 1},
				{"fieldname": "airline", "fieldtype": "Link", "options": "Airline", "reqd": 1}
			]
		}`,
		"airplane_ticket.json": `{
			"name": "Airplane Ticket",
			"is_submittable": 1,
			"track_changes": 1,
			"states": [{"title": "Booked"}, {"title": "Checked-In"}, {"title": "Boarded"}],
			"fields": [
				{"fieldname": "departure_date", "fieldtype": "Date"},
				{"fieldname": "departure_time", "fieldtype": "Time", "fetch_from": "flight.departure_time"},
				{"fieldname": "duration", "fieldtype": "Duration", "fetch_from": "flight.duration"},
				{"fieldname": "passenger", "fieldtype": "Link"},
				{"fieldname": "source_airport", "fieldtype": "Link"},
				{"fieldname": "destination_airport", "fieldtype": "Link"},
				{"fieldname": "flight", "fieldtype": "Link"},
				{"fieldname": "amended_from", "fieldtype": "Link"}
			]
		}`,
	}
}

func fixtureDay2Files() map[string]string {
	return map[string]string{
		"airplane_flight.json":     `{"name": "Airplane Flight", "has_web_view": 1}`,
		"airplane_ticket.json":     `{"name": "Airplane Ticket"}`,
		"show-me.html":             `<h1>{{ doc.name }}</h1>`,
		"airplane_flight.html":     `{% extends "templates/web.html" %}`,
		"airplane_flight_row.html": `<div>{{ doc.name }}</div>`,
		"airplane_ticket.py":       "class AirplaneTicket(Document):\n    pass\n",
		"flight_passenger.py":      "class FlightPassenger(Document):\n    pass\n",
		"airplane_flight.py":       "class AirplaneFlight(WebsiteGenerator):\n    pass\n",
		"book_ticket_web_form.json": `{"name": "book-ticket", "doc_type": "Airplane Ticket"}`,
		"flight_reminder_notification.json": `{
			"event": "Days Before",
			"days_in_advance": 1,
			"document_type": "Airplane Flight",
			"condition": "doc.status == \"Scheduled\""
		}`,
	}
}

func fixtureDay3Files() map[string]string {
	return map[string]string{
		"airline.js": "frappe.ui.form.on('Airline', {\n  refresh(frm) {\n    frm.add_web_link(`/airlines/${frm.doc.name}`, 'Visit')\n  }\n})",
		"airplane_ticket.js": `frappe.ui.form.on('Airplane Ticket', {
			refresh(frm) {
				frm.add_custom_button('Assign Seat', () => {
					let d = new frappe.ui.Dialog({
						fields: [{fieldname: 'seat', fieldtype: 'Data'}],
						primary_action(values) { frm.set_value('seat', values.seat); d.hide() }
					})
					d.show()
				})
			}
		})`,
		"airplane_ticket.py": "class AirplaneTicket(Document):\n    pass\n",
		"airplane_ticket.json": `{
			"name": "Airplane Ticket",
			"permissions": [
				{"role": "Flight Crew Member", "create": 1, "read": 1, "write": 1},
				{"role": "Travel Agent", "create": 1, "read": 1, "write": 1, "delete": 1},
				{"role": "Airport Authority Personnel", "create": 1, "read": 1},
				{"role": "Airport Authority Personnel", "write": 1, "delete": 1},
				{"role": "System Manager", "create": 1, "read": 1, "write": 1, "delete": 1}
			]
		}`,
		"airplane.json":             `{"name": "Airplane"}`,
		"airport.json":              `{"name": "Airport"}`,
		"airplanes_by_airline.json": `{"name": "Airplanes by Airline"}`,
		"revenue_by_airline.py":     "def execute(filters=None):\n    return [], []\n",
		"add_on_popularity.json":    `{"name": "Add-on Popularity"}`,
	}
}

// supersedeOnRead marks a submission stale right after handing out its
// in-progress copy, as a concurrent upload for the same slot would.
type supersedeOnRead struct {
	*sqlite.SQLiteStore
}

func (s *supersedeOnRead) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.SQLiteStore.GetSubmission(ctx, id)
	if err != nil || sub == nil {
		return sub, err
	}
	if err := s.SQLiteStore.MarkStale(ctx, []string{id}); err != nil {
		return nil, err
	}
	return sub, nil
}
