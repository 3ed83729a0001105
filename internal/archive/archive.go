// Package archive reads submission zips into a flat list of named entries.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// maxEntryBytes caps a single decoded entry; submissions are small text files.
const maxEntryBytes = 8 << 20

var allowedExtensions = []string{".json", ".py", ".html", ".js"}

var noiseMarkers = []string{"__MACOSX", ".DS_Store"}

// Error is a fatal inspection failure tied to one archive path.
type Error struct {
	Path   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the user-facing description of the failure.
func (e *Error) Message() string {
	switch e.Reason {
	case reasonJSON:
		return fmt.Sprintf("There is a problem with your JSON file: <strong>%s</strong>", path.Base(e.Path))
	case reasonDepth:
		return fmt.Sprintf("Files must not be nested in sub-folders, found <strong>%s</strong>", e.Path)
	default:
		return fmt.Sprintf("Could not read <strong>%s</strong> from the zip file", e.Path)
	}
}

const (
	reasonJSON  = "invalid json"
	reasonDepth = "nested too deep"
	reasonRead  = "unreadable entry"
)

// Entry is one whitelisted file from the archive. Name is the base name.
type Entry struct {
	Name string
	Raw  []byte
	// JSON holds the decoded document for .json entries, nil otherwise.
	JSON interface{}
}

func (e Entry) IsJSON() bool {
	return strings.HasSuffix(e.Name, ".json")
}

func (e Entry) Text() string {
	return string(e.Raw)
}

// Object returns the decoded JSON when it is an object.
func (e Entry) Object() (map[string]interface{}, bool) {
	m, ok := e.JSON.(map[string]interface{})
	return m, ok
}

// Entries is the materialized content of an archive in zip order. It is safe
// to hand the same value to several checkers.
type Entries []Entry

func (es Entries) Names() []string {
	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.Name
	}
	return names
}

// FindSuffix returns the first entry whose name ends with suffix.
func (es Entries) FindSuffix(suffix string) (Entry, bool) {
	for _, e := range es {
		if strings.HasSuffix(e.Name, suffix) {
			return e, true
		}
	}
	return Entry{}, false
}

// ByExtension maps names to entries for the given extension. When two
// entries flatten to the same name the later one wins.
func (es Entries) ByExtension(ext string) map[string]Entry {
	out := make(map[string]Entry)
	for _, e := range es {
		if strings.HasSuffix(e.Name, ext) {
			out[e.Name] = e
		}
	}
	return out
}

// Open inspects the zip file at path.
func Open(path string) (Entries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return Inspect(data)
}

// Inspect decodes every whitelisted entry of a zip blob. Any unparseable JSON
// entry or any entry nested deeper than one directory fails the whole call.
func Inspect(data []byte) (Entries, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	var entries Entries
	for _, f := range zr.File {
		name := f.Name
		if isNoise(name) || f.FileInfo().IsDir() || !allowed(name) {
			continue
		}
		if depth(name) > 1 {
			return nil, &Error{Path: name, Reason: reasonDepth}
		}

		raw, err := readEntry(f)
		if err != nil {
			return nil, &Error{Path: name, Reason: reasonRead, Err: err}
		}

		entry := Entry{Name: path.Base(name), Raw: raw}
		if entry.IsJSON() {
			doc, err := decodeJSON(raw)
			if err != nil {
				return nil, &Error{Path: name, Reason: reasonJSON, Err: err}
			}
			entry.JSON = doc
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Summary renders "<n> Files (a, b, ...)" in archive order.
func (es Entries) Summary() string {
	return fmt.Sprintf("%d Files (%s)", len(es), strings.Join(es.Names(), ", "))
}

func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return doc, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxEntryBytes {
		return nil, fmt.Errorf("entry larger than %d bytes", maxEntryBytes)
	}
	return raw, nil
}

func isNoise(name string) bool {
	for _, marker := range noiseMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func allowed(name string) bool {
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// depth counts the directories above the file: "a.json" is 0, "dir/a.json" is 1.
func depth(name string) int {
	return strings.Count(strings.Trim(name, "/"), "/")
}
