package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

type SubmissionStatus string

const (
	StatusUnchecked       SubmissionStatus = "Unchecked"
	StatusCheckInProgress SubmissionStatus = "Check In Progress"
	StatusStale           SubmissionStatus = "Stale"
	StatusPassed          SubmissionStatus = "Passed"
	StatusFailed          SubmissionStatus = "Failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusStale || s == StatusPassed || s == StatusFailed
}

const (
	Day1 = "1"
	Day2 = "2"
	Day3 = "3"
	Day4 = "4"

	// FreeformDay carries a demo video instead of an archive.
	FreeformDay = Day4
)

// FileHashes maps a flattened archive filename to its content hash.
// Stored as a JSON text column.
type FileHashes map[string]string

func (h FileHashes) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, fmt.Errorf("failed to encode file hashes: %w", err)
	}
	return string(b), nil
}

func (h *FileHashes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported file hashes type %T", src)
	}
	if len(raw) == 0 {
		*h = nil
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode file hashes: %w", err)
	}
	*h = m
	return nil
}

// Filenames returns the hashed filenames in lexical order.
func (h FileHashes) Filenames() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Submission struct {
	ID                string           `db:"id" json:"id"`
	Student           string           `db:"student" json:"student" validate:"required,max=140"`
	Day               string           `db:"day" json:"day" validate:"required,oneof=1 2 3 4"`
	Archive           string           `db:"archive" json:"archive" validate:"required_unless=Day 4"`
	DemoVideo         string           `db:"demo_video" json:"demo_video,omitempty" validate:"required_if=Day 4"`
	Status            SubmissionStatus `db:"status" json:"status"`
	Feedback          string           `db:"feedback" json:"feedback"`
	Summary           string           `db:"submission_summary" json:"submission_summary"`
	FileHashes        FileHashes       `db:"file_hashes" json:"file_hashes,omitempty"`
	SimilarityScore   float64          `db:"similarity_score" json:"similarity_score"`
	SimilarSubmission *string          `db:"similar_submission" json:"similar_submission,omitempty"`
	CreatedAt         int64            `db:"created_at" json:"created_at"`
	UpdatedAt         int64            `db:"updated_at" json:"updated_at"`
}

func (s *Submission) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// Freeform reports whether the submission skips structural checks.
func (s *Submission) Freeform() bool {
	return s.Day == FreeformDay
}
