package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	files := map[string]string{
		"airline/airline.json":          `{"name": "Airline", "fields": []}`,
		"airline/airline.js":            "frappe.ui.form.on('Airline', {})",
		"__MACOSX/airline/._airline.js": "junk",
		"airline/.DS_Store":             "junk",
		"README.md":                     "ignored extension",
		"airline_flight.py":             "import frappe",
	}
	data := buildZip(t, files,
		"airline/airline.json",
		"airline/airline.js",
		"__MACOSX/airline/._airline.js",
		"airline/.DS_Store",
		"README.md",
		"airline_flight.py",
	)

	entries, err := Inspect(data)
	require.NoError(t, err)

	t.Run("skips noise and flattens names", func(t *testing.T) {
		assert.Equal(t, []string{"airline.json", "airline.js", "airline_flight.py"}, entries.Names())
	})

	t.Run("decodes json eagerly", func(t *testing.T) {
		doc, ok := entries[0].Object()
		require.True(t, ok)
		assert.Equal(t, "Airline", doc["name"])
		assert.Nil(t, entries[1].JSON)
		assert.Equal(t, "import frappe", entries[2].Text())
	})

	t.Run("summary", func(t *testing.T) {
		assert.Equal(t, "3 Files (airline.json, airline.js, airline_flight.py)", entries.Summary())
	})
}

func TestInspectInvalidJSON(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ok.json":     `{"name": "ok"}`,
		"broken.json": `{"name": `,
	}, "ok.json", "broken.json")

	_, err := Inspect(data)
	require.Error(t, err)

	var inspectErr *Error
	require.True(t, errors.As(err, &inspectErr))
	assert.Equal(t, "broken.json", inspectErr.Path)
	assert.Contains(t, inspectErr.Message(), "broken.json")
}

func TestInspectNestedTooDeep(t *testing.T) {
	data := buildZip(t, map[string]string{
		"project/doctype/airline.json": `{"name": "Airline"}`,
	}, "project/doctype/airline.json")

	_, err := Inspect(data)
	var inspectErr *Error
	require.True(t, errors.As(err, &inspectErr))
	assert.Equal(t, "project/doctype/airline.json", inspectErr.Path)
	assert.Contains(t, inspectErr.Message(), "nested")
}

func TestInspectNotAZip(t *testing.T) {
	_, err := Inspect([]byte("definitely not a zip"))
	assert.Error(t, err)
}

func TestEntriesReusedAcrossCheckers(t *testing.T) {
	data := buildZip(t, map[string]string{
		"airline.js":           "frm.add_web_link()",
		"airplane_ticket.js":   "frm.set_value('seat', 1)",
		"airplane_ticket.json": `{"name": "Airplane Ticket"}`,
	}, "airline.js", "airplane_ticket.js", "airplane_ticket.json")

	path := filepath.Join(t.TempDir(), "submission.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Run("opened once, consumed by several lookups", func(t *testing.T) {
		entries, err := Open(path)
		require.NoError(t, err)

		scripts := entries.ByExtension(".js")
		assert.Len(t, scripts, 2)

		ticket, ok := entries.FindSuffix("ticket.json")
		require.True(t, ok)
		assert.Equal(t, "airplane_ticket.json", ticket.Name)

		// a second pass over the same value sees everything again
		assert.Len(t, entries.ByExtension(".js"), 2)
		assert.Len(t, entries.Names(), 3)
	})

	t.Run("reopened per consumer", func(t *testing.T) {
		first, err := Open(path)
		require.NoError(t, err)
		second, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
